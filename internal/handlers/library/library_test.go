package library

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"

	"muufin/internal/auth"
	"muufin/internal/httpx"
	"muufin/internal/jellyfin"
	lib "muufin/internal/library"
	"muufin/internal/logging"
)

func newTestApp(t *testing.T, handler http.HandlerFunc) *fiber.App {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	snapshot := func() auth.State {
		return auth.State{
			ServerBaseURL: srv.URL,
			UserID:        "u1",
			AccessToken:   "t1",
			DeviceID:      "d1",
			ClientName:    "Muufin",
		}
	}
	log := logging.NewLogger(nil)
	client := jellyfin.New(snapshot, httpx.NewFactory(snapshot, log), log)
	repo := lib.New(client, snapshot)

	app := fiber.New()
	app.Get("/library/albums", Albums(repo))
	app.Get("/library/search", Search(repo))
	return app
}

func TestAlbumsEndpoint(t *testing.T) {
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("userId"); got != "u1" {
			t.Errorf("Expected userId u1, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(jellyfin.QueryResult{
			Items:            []jellyfin.BaseItem{{ID: "al1", Name: "Album", Type: "MusicAlbum"}},
			TotalRecordCount: 1,
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/library/albums", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var body struct {
		Items []jellyfin.BaseItem `json:"items"`
		Total int                 `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].ID != "al1" {
		t.Errorf("Expected 1 album al1, got %+v", body.Items)
	}
}

func TestSearchEndpointRequiresTerm(t *testing.T) {
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/library/search", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 without q, got %d", resp.StatusCode)
	}
}
