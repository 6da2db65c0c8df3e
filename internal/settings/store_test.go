package settings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/officeboard/panel/internal/apperr"
	"github.com/officeboard/panel/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBackend struct {
	settings *models.Settings
	fetchErr []error // consumed per call; last entry repeats
	saveErr  error

	fetchCalls int
	saved      []models.SettingsRequest
}

func (f *fakeBackend) FetchSettings(context.Context) (*models.Settings, error) {
	i := f.fetchCalls
	f.fetchCalls++
	if len(f.fetchErr) > 0 {
		if i >= len(f.fetchErr) {
			i = len(f.fetchErr) - 1
		}
		if err := f.fetchErr[i]; err != nil {
			return nil, err
		}
	}
	if f.settings == nil {
		return &models.Settings{}, nil
	}
	return f.settings, nil
}

func (f *fakeBackend) SaveSettings(_ context.Context, req models.SettingsRequest) error {
	f.saved = append(f.saved, req)
	return f.saveErr
}

func newStore(b *fakeBackend) *Store {
	s := New(b, testLogger())
	s.RetryBase = time.Millisecond
	return s
}

func TestInitializeAppliesPersistedSettings(t *testing.T) {
	b := &fakeBackend{settings: &models.Settings{
		Address: "https://docs.example",
		Header:  "Authorization",
		Secret:  "s3cret",
	}}
	s := newStore(b)

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !s.HasSettings() {
		t.Error("expected settings present")
	}
	if s.Loading() {
		t.Error("loading must clear")
	}
	view := s.Snapshot()
	if view.Address != "https://docs.example" {
		t.Errorf("address = %q", view.Address)
	}
}

func TestInitializeRetriesTransientFailures(t *testing.T) {
	b := &fakeBackend{
		settings: &models.Settings{Address: "a", Header: "h", Secret: "s"},
		fetchErr: []error{errors.New("boom"), errors.New("boom"), nil},
	}
	s := newStore(b)

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if b.fetchCalls != 3 {
		t.Errorf("fetch calls = %d, want 3", b.fetchCalls)
	}
	if !s.HasSettings() {
		t.Error("expected settings after recovery")
	}
}

func TestInitializeExhaustsRetries(t *testing.T) {
	b := &fakeBackend{fetchErr: []error{errors.New("boom")}}
	s := newStore(b)

	err := s.Initialize(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if b.fetchCalls != 3 {
		t.Errorf("fetch calls = %d, want 3", b.fetchCalls)
	}
	if s.Loading() {
		t.Error("loading must clear even on failure")
	}
}

func TestInitializeAuthFailureIsNotRetried(t *testing.T) {
	b := &fakeBackend{fetchErr: []error{apperr.New(apperr.KindNotAuthorized, "no")}}
	s := newStore(b)

	err := s.Initialize(context.Background())
	if apperr.KindOf(err) != apperr.KindNotAuthorized {
		t.Fatalf("err = %v", err)
	}
	if b.fetchCalls != 1 {
		t.Errorf("fetch calls = %d, want 1", b.fetchCalls)
	}
}

func TestInitializeEmptySettings(t *testing.T) {
	b := &fakeBackend{settings: &models.Settings{}}
	s := newStore(b)

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	// No credentials and no demo running: unusable, but not expired either.
	if !s.HasSettings() {
		// A never-started demo is not expired, so HasSettings holds.
		t.Error("expected HasSettings for a fresh install")
	}
	if s.IsDemoExpired() {
		t.Error("a never-started demo cannot be expired")
	}
}

func TestDemoExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		started time.Time
		expired bool
	}{
		{"fresh demo", now.Add(-24 * time.Hour), false},
		{"last day", now.Add(-29 * 24 * time.Hour), false},
		{"ran out", now.Add(-31 * 24 * time.Hour), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &fakeBackend{settings: &models.Settings{
				Demo: models.DemoSettings{Enabled: true, Started: tc.started.Format(time.RFC3339)},
			}}
			s := newStore(b)
			s.now = func() time.Time { return now }

			if err := s.Initialize(context.Background()); err != nil {
				t.Fatal(err)
			}
			if got := s.IsDemoExpired(); got != tc.expired {
				t.Errorf("IsDemoExpired() = %v, want %v", got, tc.expired)
			}
			// An expired demo without credentials means no usable settings.
			if s.HasSettings() == tc.expired {
				t.Errorf("HasSettings() = %v with expired=%v", s.HasSettings(), tc.expired)
			}
		})
	}
}

func TestExpiredDemoWithCredentialsStaysUsable(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	b := &fakeBackend{settings: &models.Settings{
		Address: "a", Header: "h", Secret: "s",
		Demo: models.DemoSettings{Enabled: false, Started: now.Add(-60 * 24 * time.Hour).Format(time.RFC3339)},
	}}
	s := newStore(b)
	s.now = func() time.Time { return now }

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !s.HasSettings() {
		t.Error("persisted credentials must outlive the demo")
	}
}

func TestSaveGuardsRunningDemo(t *testing.T) {
	b := &fakeBackend{settings: &models.Settings{
		Demo: models.DemoSettings{Enabled: true, Started: "2024-01-01T00:00:00Z"},
	}}
	s := newStore(b)
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Half-filled form while a demo runs: the save must not happen.
	s.SetAddress("https://docs.example")
	if err := s.Save(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(b.saved) != 0 {
		t.Errorf("saved %d requests, want 0", len(b.saved))
	}

	// A complete form goes through.
	s.SetHeader("Authorization")
	s.SetSecret("s3cret")
	if err := s.Save(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(b.saved) != 1 {
		t.Fatalf("saved %d requests, want 1", len(b.saved))
	}
}

func TestSaveStampsDemoStart(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	b := &fakeBackend{}
	s := newStore(b)
	s.now = func() time.Time { return now }

	s.SetDemo(true)
	if err := s.Save(context.Background()); err != nil {
		t.Fatal(err)
	}

	view := s.Snapshot()
	if view.DemoStarted != now.Format(time.RFC3339) {
		t.Errorf("demoStarted = %q", view.DemoStarted)
	}

	// A second save must not move the start.
	s.now = func() time.Time { return now.Add(48 * time.Hour) }
	s.SetAddress("a")
	s.SetHeader("h")
	s.SetSecret("s")
	if err := s.Save(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().DemoStarted; got != now.Format(time.RFC3339) {
		t.Errorf("demoStarted moved to %q", got)
	}
}

func TestSaveAccessDenied(t *testing.T) {
	b := &fakeBackend{saveErr: apperr.New(apperr.KindAccessDenied, "denied")}
	s := newStore(b)
	s.SetAddress("a")
	s.SetHeader("h")
	s.SetSecret("s")

	err := s.Save(context.Background())
	if apperr.KindOf(err) != apperr.KindAccessDenied {
		t.Fatalf("err = %v", err)
	}
	if s.Error() != "access denied" {
		t.Errorf("error message = %q", s.Error())
	}
}

func TestSaveSwallowsOtherFailures(t *testing.T) {
	b := &fakeBackend{saveErr: errors.New("boom")}
	s := newStore(b)
	s.SetAddress("a")
	s.SetHeader("h")
	s.SetSecret("s")

	if err := s.Save(context.Background()); err != nil {
		t.Errorf("expected swallowed failure, got %v", err)
	}
	if s.Loading() {
		t.Error("loading must clear")
	}
}
