package jellyfin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"muufin/internal/auth"
	"muufin/internal/httpx"
	"muufin/internal/logging"
)

func newTestClient(srv *httptest.Server) (*Client, func() auth.State) {
	snapshot := func() auth.State {
		return auth.State{
			ServerBaseURL: srv.URL,
			UserID:        "u1",
			AccessToken:   "t1",
			DeviceID:      "d1",
			ClientName:    "Muufin",
			DeviceName:    "test",
			AppVersion:    "0.1.0",
		}
	}
	log := logging.NewLogger(nil)
	return New(snapshot, httpx.NewFactory(snapshot, log), log), snapshot
}

func TestAuthenticateByNameSendsTokenlessHeader(t *testing.T) {
	var gotAuthz string
	var gotBody AuthRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Users/AuthenticateByName" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		gotAuthz = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(AuthResult{
			AccessToken: "fresh-token",
			ServerID:    "srv1",
			User:        &User{ID: "u9", Name: "alice"},
		})
	}))
	defer srv.Close()

	client, snapshot := newTestClient(srv)
	result, err := client.AuthenticateByName(context.Background(), snapshot(), "alice", "secret")
	if err != nil {
		t.Fatalf("AuthenticateByName failed: %v", err)
	}

	if result.AccessToken != "fresh-token" || result.User.ID != "u9" {
		t.Errorf("Unexpected result: %+v", result)
	}
	if gotBody.Username != "alice" || gotBody.Password != "secret" {
		t.Errorf("Unexpected body: %+v", gotBody)
	}
	if strings.Contains(gotAuthz, "Token=") {
		t.Errorf("Login must use the token-less header variant: %q", gotAuthz)
	}
	if !strings.Contains(gotAuthz, `DeviceId="d1"`) {
		t.Errorf("Login header missing client identity: %q", gotAuthz)
	}
}

func TestAuthenticateByNameRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, snapshot := newTestClient(srv)
	_, err := client.AuthenticateByName(context.Background(), snapshot(), "alice", "wrong")

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected AuthError, got %T: %v", err, err)
	}
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", authErr.StatusCode)
	}
}

func TestWaitForQuickConnectPollsUntilApproved(t *testing.T) {
	old := quickConnectPollInterval
	quickConnectPollInterval = 10 * time.Millisecond
	defer func() { quickConnectPollInterval = old }()

	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("secret") != "s1" {
			t.Errorf("Expected secret query parameter, got %q", r.URL.RawQuery)
		}
		n := polls.Add(1)
		result := QuickConnectResult{Authenticated: n >= 3}
		if result.Authenticated {
			result.AccessToken = "qc-token"
			result.ID = "u5"
		}
		_ = json.NewEncoder(w).Encode(result)
	}))
	defer srv.Close()

	client, _ := newTestClient(srv)
	result, err := client.WaitForQuickConnect(context.Background(), "s1")
	if err != nil {
		t.Fatalf("WaitForQuickConnect failed: %v", err)
	}
	if result.AccessToken != "qc-token" || result.ResolvedUserID() != "u5" {
		t.Errorf("Unexpected result: %+v", result)
	}
	if polls.Load() < 3 {
		t.Errorf("Expected at least 3 polls, got %d", polls.Load())
	}
}

func TestWaitForQuickConnectHonorsContext(t *testing.T) {
	old := quickConnectPollInterval
	quickConnectPollInterval = 10 * time.Millisecond
	defer func() { quickConnectPollInterval = old }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(QuickConnectResult{Authenticated: false})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client, _ := newTestClient(srv)
	if _, err := client.WaitForQuickConnect(ctx, "s1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context deadline error, got %v", err)
	}
}

func TestItemsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Items" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if !strings.Contains(r.Header.Get("Authorization"), `Token="t1"`) {
			t.Error("Expected authenticated header on item queries")
		}
		_ = json.NewEncoder(w).Encode(QueryResult{
			Items:            []BaseItem{{ID: "a", Name: "Album"}},
			TotalRecordCount: 1,
		})
	}))
	defer srv.Close()

	client, _ := newTestClient(srv)
	result, err := client.Items(context.Background(), nil)
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if result.TotalRecordCount != 1 || result.Items[0].ID != "a" {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestReportPlaybackStartBody(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Sessions/Playing" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, _ := newTestClient(srv)
	err := client.ReportPlaybackStart(context.Background(), PlaybackStartInfo{
		ItemID:        "a",
		CanSeek:       true,
		PositionTicks: MsToTicks(1_000),
		PlayMethod:    "DirectPlay",
		PlaySessionID: "ps1",
	})
	if err != nil {
		t.Fatalf("ReportPlaybackStart failed: %v", err)
	}

	if got["ItemId"] != "a" || got["PlayMethod"] != "DirectPlay" || got["PlaySessionId"] != "ps1" {
		t.Errorf("Unexpected body: %v", got)
	}
	if got["PositionTicks"] != float64(10_000_000) {
		t.Errorf("Expected PositionTicks 10000000, got %v", got["PositionTicks"])
	}
}
