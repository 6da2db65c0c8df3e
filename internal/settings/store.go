// Package settings owns the backend connection configuration and the
// demo-mode state for one board.
package settings

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/officeboard/panel/internal/apperr"
	"github.com/officeboard/panel/internal/models"
)

// DefaultDemoExpirationDays bounds the demo trial when configuration does
// not override it.
const DefaultDemoExpirationDays = 30

// Backend is the slice of the transport the store needs.
type Backend interface {
	FetchSettings(ctx context.Context) (*models.Settings, error)
	SaveSettings(ctx context.Context, req models.SettingsRequest) error
}

// Store loads and saves settings and computes demo expiry. It exclusively
// owns the settings state; other stores read it through methods only.
type Store struct {
	backend Backend
	log     *slog.Logger

	// DemoExpirationDays is the trial length; defaults to
	// DefaultDemoExpirationDays.
	DemoExpirationDays int
	// RetryBase is the first backoff delay of the initialize retry
	// schedule.
	RetryBase time.Duration

	now func() time.Time

	mu                   sync.Mutex
	address              string
	header               string
	secret               string
	demo                 bool
	demoStarted          string
	persistedCredentials bool
	loading              bool
	hasSettings          bool
	errMsg               string
}

// New creates a settings store.
func New(backend Backend, log *slog.Logger) *Store {
	return &Store{
		backend:            backend,
		log:                log,
		DemoExpirationDays: DefaultDemoExpirationDays,
		RetryBase:          250 * time.Millisecond,
		now:                time.Now,
	}
}

const initializeAttempts = 3

// Initialize fetches the persisted settings. Authorization failures are
// rethrown for the session layer; any other failure is retried with
// exponential backoff and, once exhausted, surfaced as an unclassified
// fetch failure. HasSettings is recomputed on every path.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()

	defer s.recompute()

	var lastErr error
	for attempt := 0; attempt < initializeAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, s.RetryBase<<(attempt-1)); err != nil {
				return err
			}
		}

		settings, err := s.backend.FetchSettings(ctx)
		if err == nil {
			s.apply(settings)
			return nil
		}
		switch apperr.KindOf(err) {
		case apperr.KindNotAuthorized, apperr.KindAccessDenied:
			return err
		}
		lastErr = err
	}

	s.log.Warn("settings: initialize failed", slog.String("error", lastErr.Error()))
	return apperr.Wrap(apperr.KindUnclassified, "failed to fetch settings", lastErr)
}

func (s *Store) apply(settings *models.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = settings.Address
	s.header = settings.Header
	s.secret = settings.Secret
	s.demo = settings.Demo.Enabled
	s.demoStarted = settings.Demo.Started
	s.persistedCredentials = settings.Address != "" && settings.Header != "" && settings.Secret != ""
	s.errMsg = ""
}

// recompute derives HasSettings and clears the loading flag. HasSettings is
// true iff persisted credentials exist or the demo is active and not
// expired.
func (s *Store) recompute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasSettings = !s.demoExpiredLocked() || s.persistedCredentials
	s.loading = false
}

// Save persists the current form state. Saving is a no-op when a demo is
// already running and any credential field is empty, so a half-filled form
// cannot corrupt a running demo. A 403 surfaces as "access denied"; other
// failures reset loading and are otherwise swallowed.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.demoStarted != "" && (s.address == "" || s.header == "" || s.secret == "") {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.errMsg = ""
	req := models.SettingsRequest{
		Address: s.address,
		Header:  s.header,
		Secret:  s.secret,
		Demo:    s.demo,
	}
	s.mu.Unlock()

	err := s.backend.SaveSettings(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		if apperr.KindOf(err) == apperr.KindAccessDenied {
			s.errMsg = "access denied"
			return err
		}
		s.log.Warn("settings: save failed", slog.String("error", err.Error()))
		return nil
	}

	s.persistedCredentials = s.address != "" && s.header != "" && s.secret != ""
	if s.demo && s.demoStarted == "" {
		s.demoStarted = s.now().UTC().Format(time.RFC3339)
	}
	return nil
}

// IsDemoExpired reports whether the demo trial ran past its expiry.
func (s *Store) IsDemoExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.demoExpiredLocked()
}

func (s *Store) demoExpiredLocked() bool {
	if s.demoStarted == "" {
		return false
	}
	started, err := time.Parse(time.RFC3339, s.demoStarted)
	if err != nil {
		return false
	}
	expiry := started.Add(time.Duration(s.DemoExpirationDays) * 24 * time.Hour)
	return s.now().After(expiry)
}

// SetAddress updates the form field.
func (s *Store) SetAddress(v string) { s.set(func() { s.address = v }) }

// SetHeader updates the form field.
func (s *Store) SetHeader(v string) { s.set(func() { s.header = v }) }

// SetSecret updates the form field.
func (s *Store) SetSecret(v string) { s.set(func() { s.secret = v }) }

// SetDemo updates the demo toggle.
func (s *Store) SetDemo(v bool) { s.set(func() { s.demo = v }) }

func (s *Store) set(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// HasSettings reports whether the board is usable: persisted credentials or
// a live demo.
func (s *Store) HasSettings() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasSettings
}

// Loading reports whether a fetch or save is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Error returns the last user-visible error message, empty when none.
func (s *Store) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// View is a read-only copy of the settings state for the API layer.
type View struct {
	Address     string `json:"address"`
	Header      string `json:"header"`
	Secret      string `json:"secret"`
	Demo        bool   `json:"demo"`
	DemoStarted string `json:"demo_started"`
	HasSettings bool   `json:"has_settings"`
}

// Snapshot returns the current settings state.
func (s *Store) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Address:     s.address,
		Header:      s.header,
		Secret:      s.secret,
		Demo:        s.demo,
		DemoStarted: s.demoStarted,
		HasSettings: s.hasSettings,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
