package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/officeboard/panel/internal/apperr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBackend struct {
	expiresAt int64
	err       error
	calls     int
}

func (f *fakeBackend) Authorize(context.Context) (int64, error) {
	f.calls++
	return f.expiresAt, f.err
}

type fakeSettings struct {
	initErr     error
	hasSettings bool
	calls       int
}

func (f *fakeSettings) Initialize(context.Context) error {
	f.calls++
	return f.initErr
}

func (f *fakeSettings) HasSettings() bool { return f.hasSettings }

func newManager(b *fakeBackend, s *fakeSettings) *Manager {
	m := New(b, s, testLogger())
	m.now = func() time.Time { return time.Unix(1000, 0) }
	return m
}

func TestShouldRefreshCookie(t *testing.T) {
	cases := []struct {
		name      string
		hasCookie bool
		expiresAt int64
		want      bool
	}{
		{"no cookie", false, 0, true},
		{"unknown expiry", true, 0, true},
		{"expires well in the future", true, 2000, false},
		{"expires within the refresh window", true, 1020, true},
		{"expires exactly at the window edge", true, 1030, true},
		{"already expired", true, 900, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newManager(&fakeBackend{}, &fakeSettings{})
			m.mu.Lock()
			m.hasCookie = tc.hasCookie
			m.cookieExpiresAt = tc.expiresAt
			m.mu.Unlock()

			if got := m.ShouldRefreshCookie(); got != tc.want {
				t.Errorf("ShouldRefreshCookie() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAuthorizeRecordsCookie(t *testing.T) {
	b := &fakeBackend{expiresAt: 5000}
	m := newManager(b, &fakeSettings{})

	if err := m.Authorize(context.Background()); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !m.HasCookie() {
		t.Error("expected cookie recorded")
	}
	if m.CookieExpiresAt() != 5000 {
		t.Errorf("expiresAt = %d", m.CookieExpiresAt())
	}
}

func TestAuthorizeFailureResetsCookie(t *testing.T) {
	b := &fakeBackend{expiresAt: 5000}
	m := newManager(b, &fakeSettings{})
	if err := m.Authorize(context.Background()); err != nil {
		t.Fatal(err)
	}

	b.err = apperr.New(apperr.KindNotAuthorized, "not authorized")
	if err := m.Authorize(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if m.HasCookie() {
		t.Error("cookie must reset on failure")
	}
	if m.CookieExpiresAt() != 0 {
		t.Errorf("expiresAt = %d, want 0", m.CookieExpiresAt())
	}
	if m.Authorized() {
		t.Error("authorization failure must clear the authorized flag")
	}
}

func TestEnsureFreshCookieSkipsWhenFresh(t *testing.T) {
	b := &fakeBackend{expiresAt: 5000}
	m := newManager(b, &fakeSettings{})
	if err := m.Authorize(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := m.EnsureFreshCookie(context.Background()); err != nil {
		t.Fatal(err)
	}
	if b.calls != 1 {
		t.Errorf("authorize calls = %d, want 1", b.calls)
	}
}

func TestReloadAuthorizationSuccess(t *testing.T) {
	s := &fakeSettings{hasSettings: true}
	m := newManager(&fakeBackend{}, s)

	view := m.ReloadAuthorization(context.Background())

	if view != ViewMain {
		t.Errorf("view = %q, want main", view)
	}
	if !m.Authorized() || !m.Admin() {
		t.Error("expected authorized admin session")
	}
	if m.Loading() {
		t.Error("loading must clear")
	}
}

func TestReloadAuthorizationWithoutSettings(t *testing.T) {
	s := &fakeSettings{hasSettings: false}
	m := newManager(&fakeBackend{}, s)

	if view := m.ReloadAuthorization(context.Background()); view != ViewSettings {
		t.Errorf("view = %q, want settings", view)
	}
}

func TestReloadAuthorizationFlagMapping(t *testing.T) {
	cases := []struct {
		name           string
		err            error
		wantAuthorized bool
		wantAdmin      bool
	}{
		{"not authorized", apperr.New(apperr.KindNotAuthorized, "no"), false, false},
		{"timeout fails closed", apperr.New(apperr.KindRequestTimeout, "request timeout"), false, false},
		{"access denied keeps session", apperr.New(apperr.KindAccessDenied, "denied"), true, false},
		{"unclassified keeps session", errors.New("boom"), true, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &fakeSettings{initErr: tc.err, hasSettings: true}
			m := newManager(&fakeBackend{}, s)

			m.ReloadAuthorization(context.Background())

			if m.Authorized() != tc.wantAuthorized {
				t.Errorf("authorized = %v, want %v", m.Authorized(), tc.wantAuthorized)
			}
			if m.Admin() != tc.wantAdmin {
				t.Errorf("admin = %v, want %v", m.Admin(), tc.wantAdmin)
			}
		})
	}
}

func TestRefreshAuthorizationRecovers(t *testing.T) {
	s := &fakeSettings{initErr: apperr.New(apperr.KindNotAuthorized, "no"), hasSettings: true}
	m := newManager(&fakeBackend{}, s)
	m.ReloadAuthorization(context.Background())
	if m.Authorized() {
		t.Fatal("precondition: unauthorized")
	}

	s.initErr = nil
	m.RefreshAuthorization(context.Background())

	if !m.Authorized() || !m.Admin() {
		t.Error("expected recovered session")
	}
}
