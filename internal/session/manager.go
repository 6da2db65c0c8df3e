// Package session tracks the short-lived backend session cookie and the
// global authorized/admin flags derived from it.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/officeboard/panel/internal/apperr"
)

// refreshWindow is how close to expiry the cookie is considered stale.
const refreshWindow = 30 * time.Second

// View is the navigation decision made after reloading authorization.
type View string

const (
	// ViewSettings means the panel should land on the settings form.
	ViewSettings View = "settings"
	// ViewMain means the panel should land on the document listing.
	ViewMain View = "main"
)

// Backend is the slice of the transport the manager needs.
type Backend interface {
	Authorize(ctx context.Context) (expiresAt int64, err error)
}

// Settings is the slice of the settings store the manager reads. It is
// never mutated here beyond calling Initialize.
type Settings interface {
	Initialize(ctx context.Context) error
	HasSettings() bool
}

// Manager owns the cookie state and the authorized/admin session flags.
type Manager struct {
	backend  Backend
	settings Settings
	log      *slog.Logger
	now      func() time.Time

	mu              sync.Mutex
	loading         bool
	authorized      bool
	admin           bool
	hasCookie       bool
	cookieExpiresAt int64 // epoch seconds; 0 means unknown
}

// New creates a session manager.
func New(backend Backend, settings Settings, log *slog.Logger) *Manager {
	return &Manager{backend: backend, settings: settings, log: log, now: time.Now}
}

// ShouldRefreshCookie reports whether the cookie is absent, of unknown
// expiry, or within 30 seconds of expiring. Pure, no side effects.
func (m *Manager) ShouldRefreshCookie() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasCookie || m.cookieExpiresAt == 0 {
		return true
	}
	return time.Unix(m.cookieExpiresAt, 0).Sub(m.now()) <= refreshWindow
}

// Authorize requests a fresh session cookie from the backend. Every failure
// class resets the cookie state; authorization failures additionally flip
// the global flags. Failures are never retried here; retry lives one layer
// up, in the document fetch.
func (m *Manager) Authorize(ctx context.Context) error {
	m.mu.Lock()
	m.hasCookie = false
	m.mu.Unlock()

	expiresAt, err := m.backend.Authorize(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.hasCookie = false
		m.cookieExpiresAt = 0
		m.applyAuthFlagsLocked(err)
		return err
	}
	m.hasCookie = true
	m.cookieExpiresAt = expiresAt
	return nil
}

// EnsureFreshCookie authorizes only when the cookie needs a refresh.
func (m *Manager) EnsureFreshCookie(ctx context.Context) error {
	if !m.ShouldRefreshCookie() {
		return nil
	}
	return m.Authorize(ctx)
}

// ReloadAuthorization performs the full session bootstrap: it initializes
// settings, derives the authorized/admin flags, and returns the navigation
// decision: the settings view when no usable settings exist, the main view
// otherwise.
func (m *Manager) ReloadAuthorization(ctx context.Context) View {
	m.mu.Lock()
	m.loading = true
	m.authorized = false
	m.admin = false
	m.mu.Unlock()

	err := m.settings.Initialize(ctx)

	m.mu.Lock()
	m.loading = false
	if err == nil {
		m.authorized = true
		m.admin = true
	} else {
		m.applyAuthFlagsLocked(err)
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Warn("session: reload authorization", slog.String("error", err.Error()))
	}

	if !m.settings.HasSettings() {
		return ViewSettings
	}
	return ViewMain
}

// RefreshAuthorization re-derives the session flags without the navigation
// decision or the loading gate.
func (m *Manager) RefreshAuthorization(ctx context.Context) {
	err := m.settings.Initialize(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		m.authorized = true
		m.admin = true
		return
	}
	m.applyAuthFlagsLocked(err)
}

// applyAuthFlagsLocked maps an error to the session flags: not authorized
// (and fail-closed timeouts) clears both; access denied keeps authorized
// but drops admin; anything else leaves the session intact.
func (m *Manager) applyAuthFlagsLocked(err error) {
	if !apperr.IsAuth(err) {
		m.authorized = true
		m.admin = true
		return
	}
	forbidden := apperr.KindOf(err) == apperr.KindAccessDenied
	m.authorized = forbidden
	m.admin = false
}

// Loading reports whether a reload is in flight.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Authorized reports whether the current user holds a valid session.
func (m *Manager) Authorized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authorized
}

// Admin reports whether the current user may change settings.
func (m *Manager) Admin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admin
}

// HasCookie reports whether a session cookie is currently recorded.
func (m *Manager) HasCookie() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasCookie
}

// CookieExpiresAt returns the recorded expiry in epoch seconds, 0 when
// unknown.
func (m *Manager) CookieExpiresAt() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cookieExpiresAt
}
