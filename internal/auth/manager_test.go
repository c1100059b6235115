package auth

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"muufin/internal/logging"
	"muufin/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	if err := store.MigrateUp(path); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m, err := NewManager(st, "Muufin", "test-device", "0.1.0", logging.NewLogger(nil))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m, st
}

func TestAuthorizationHeaderFormat(t *testing.T) {
	s := State{
		ClientName:  "Muufin",
		DeviceName:  "living room",
		DeviceID:    "d1",
		AppVersion:  "0.1.0",
		AccessToken: "t1",
	}

	plain := s.Authorization(false)
	if !strings.HasPrefix(plain, "MediaBrowser ") {
		t.Fatalf("Expected MediaBrowser scheme, got %q", plain)
	}
	for _, want := range []string{`Client="Muufin"`, `Device="living room"`, `DeviceId="d1"`, `Version="0.1.0"`} {
		if !strings.Contains(plain, want) {
			t.Errorf("Header missing %s: %q", want, plain)
		}
	}
	if strings.Contains(plain, "Token=") {
		t.Errorf("Unauthenticated variant must not carry a token: %q", plain)
	}

	authed := s.Authorization(true)
	if !strings.Contains(authed, `Token="t1"`) {
		t.Errorf("Authenticated variant missing token: %q", authed)
	}
}

func TestDeviceIDStableAcrossRestarts(t *testing.T) {
	m, st := newTestManager(t)
	first := m.Snapshot().DeviceID
	if first == "" {
		t.Fatal("Expected a minted device id")
	}

	again, err := NewManager(st, "Muufin", "test-device", "0.1.0", logging.NewLogger(nil))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if again.Snapshot().DeviceID != first {
		t.Errorf("Expected device id %s to survive restart, got %s", first, again.Snapshot().DeviceID)
	}
}

func TestSignInAppliesServerBeforeExchange(t *testing.T) {
	m, _ := newTestManager(t)

	var seen State
	m.SetAuthenticator(func(_ context.Context, state State, username, password string) (string, string, error) {
		seen = state
		return "u1", "t1", nil
	})

	if err := m.SignIn(context.Background(), "https://h/", "alice", "pw", TrustDisabled); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	if seen.ServerBaseURL != "https://h" {
		t.Errorf("Expected exchange to see trimmed server URL, got %q", seen.ServerBaseURL)
	}
	if seen.TrustMode != TrustDisabled {
		t.Errorf("Expected exchange to see requested trust mode, got %v", seen.TrustMode)
	}

	snap := m.Snapshot()
	if !snap.IsSignedIn() || snap.UserID != "u1" || snap.AccessToken != "t1" {
		t.Errorf("Expected signed-in state, got %+v", snap)
	}
}

func TestSignInWithoutAuthenticator(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.SignIn(context.Background(), "https://h", "alice", "pw", TrustSystem); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestSignOutPreservesDeviceAndTrust(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetAuthenticator(func(context.Context, State, string, string) (string, string, error) {
		return "u1", "t1", nil
	})
	if err := m.SignIn(context.Background(), "https://h", "alice", "pw", TrustDisabled); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	device := m.Snapshot().DeviceID

	m.SignOut()

	snap := m.Snapshot()
	if snap.IsSignedIn() {
		t.Error("Expected credentials cleared after sign-out")
	}
	if snap.AccessToken != "" || snap.UserID != "" {
		t.Errorf("Expected empty credentials, got %+v", snap)
	}
	if snap.DeviceID != device {
		t.Errorf("Expected device id preserved, got %s", snap.DeviceID)
	}
	if snap.TrustMode != TrustDisabled {
		t.Errorf("Expected trust mode preserved, got %v", snap.TrustMode)
	}
}

func TestImportTrustAnchorRejectsGarbage(t *testing.T) {
	m, _ := newTestManager(t)
	before := m.Snapshot()

	err := m.ImportTrustAnchor([]byte("not a certificate"))
	if !errors.Is(err, ErrInvalidCertificate) {
		t.Fatalf("Expected ErrInvalidCertificate, got %v", err)
	}

	after := m.Snapshot()
	if after.TrustMode != before.TrustMode || len(after.TrustAnchorPEM) != len(before.TrustAnchorPEM) {
		t.Error("Failed import must not mutate state")
	}
}

func TestOnChangeFiresOnMutation(t *testing.T) {
	m, _ := newTestManager(t)

	calls := 0
	m.OnChange(func(State) { calls++ })

	m.SetTrustMode(TrustDisabled)
	if calls != 1 {
		t.Errorf("Expected 1 hook call after SetTrustMode, got %d", calls)
	}
	m.SignOut()
	if calls != 2 {
		t.Errorf("Expected 2 hook calls after SignOut, got %d", calls)
	}
}
