package jellyfin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"muufin/internal/auth"
	"muufin/internal/httpx"
	"muufin/internal/logging"
)

// AuthError reports rejected credentials or an expired token. Callers
// surface it to the UI layer as a sign-in prompt.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth rejected (http %d): %s", e.StatusCode, e.Message)
}

// Client talks to the Jellyfin server API. It reads a fresh authority
// snapshot per request so credential or TLS changes apply to the next call
// without reconstructing the client.
type Client struct {
	snapshot func() auth.State
	http     *httpx.Factory
	log      logging.Logger
}

func New(snapshot func() auth.State, factory *httpx.Factory, log logging.Logger) *Client {
	return &Client{snapshot: snapshot, http: factory, log: log}
}

// quickConnectPollInterval is how often the handshake status is re-checked.
var quickConnectPollInterval = time.Second

func (c *Client) url(state auth.State, endpoint string, q url.Values) (string, error) {
	base := state.BaseURL()
	if base == "" {
		return "", &httpx.NetworkError{Err: errors.New("no server configured")}
	}
	u := base + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u, nil
}

// doJSON issues a request and decodes the JSON response into dst (skipped
// when dst is nil). A non-empty authorization overrides the transport's
// injected header, which is how pre-login calls send the token-less variant.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, q url.Values, body any, dst any, authorization string) error {
	state := c.snapshot()
	u, err := c.url(state, endpoint, q)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &httpx.NetworkError{Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := c.http.APIClient().Do(req)
	if err != nil {
		return httpx.Classify(err)
	}
	return readJSON(resp, dst)
}

// readJSON consumes the response body, mapping auth failures to AuthError
// and embedding a truncated body snippet in decode errors.
func readJSON(resp *http.Response, dst any) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &httpx.NetworkError{Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthError{StatusCode: resp.StatusCode, Message: snippet(data)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("http %d from %s: %s", resp.StatusCode, resp.Request.URL.Path, snippet(data))
	}

	if dst == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode json from %s: %w; body: %q", resp.Request.URL.Path, err, snippet(data))
	}
	return nil
}

func snippet(body []byte) string {
	s := string(body)
	if len(s) > 240 {
		s = s[:240] + "…"
	}
	return s
}

// AuthenticateByName performs the username/password exchange. The request
// carries the token-less authorization variant; the server requires the
// client identity fields even before login.
func (c *Client) AuthenticateByName(ctx context.Context, state auth.State, username, password string) (*AuthResult, error) {
	u, err := c.url(state, "/Users/AuthenticateByName", nil)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(AuthRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, &httpx.NetworkError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", state.Authorization(false))

	resp, err := c.http.APIClient().Do(req)
	if err != nil {
		return nil, httpx.Classify(err)
	}

	var result AuthResult
	if err := readJSON(resp, &result); err != nil {
		return nil, err
	}
	if result.AccessToken == "" || result.User == nil || result.User.ID == "" {
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: "server returned no credentials"}
	}
	return &result, nil
}

// QuickConnectInitiate starts the handshake pairing flow and returns the
// code to display plus the secret to poll with.
func (c *Client) QuickConnectInitiate(ctx context.Context) (*QuickConnectState, error) {
	state := c.snapshot()
	var out QuickConnectState
	if err := c.doJSON(ctx, http.MethodPost, "/QuickConnect/Initiate", nil, nil, &out, state.Authorization(false)); err != nil {
		return nil, err
	}
	if out.Secret == "" {
		return nil, errors.New("quick connect: server returned no secret")
	}
	return &out, nil
}

// WaitForQuickConnect polls the handshake status every second until the
// pairing is approved or ctx is done. Transient network errors are retried;
// this is the only retried endpoint in the client.
func (c *Client) WaitForQuickConnect(ctx context.Context, secret string) (*QuickConnectResult, error) {
	ticker := time.NewTicker(quickConnectPollInterval)
	defer ticker.Stop()

	q := url.Values{}
	q.Set("secret", secret)

	for {
		var out QuickConnectResult
		err := c.doJSON(ctx, http.MethodGet, "/QuickConnect/Connect", q, nil, &out, "")
		switch {
		case err == nil && out.Authenticated:
			return &out, nil
		case err != nil:
			var netErr *httpx.NetworkError
			if !errors.As(err, &netErr) {
				return nil, err
			}
			c.log.Debug("Quick connect poll failed, retrying", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CurrentUser returns the signed-in user's profile.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var out User
	if err := c.doJSON(ctx, http.MethodGet, "/Users/Me", nil, nil, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// PublicSystemInfo returns server identity without authentication.
func (c *Client) PublicSystemInfo(ctx context.Context) (*SystemInfo, error) {
	var out SystemInfo
	if err := c.doJSON(ctx, http.MethodGet, "/System/Info/Public", nil, nil, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// Items queries the item API with caller-built parameters.
func (c *Client) Items(ctx context.Context, q url.Values) (*QueryResult, error) {
	var out QueryResult
	if err := c.doJSON(ctx, http.MethodGet, "/Items", q, nil, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// Artists queries the artist listing.
func (c *Client) Artists(ctx context.Context, q url.Values) (*QueryResult, error) {
	var out QueryResult
	if err := c.doJSON(ctx, http.MethodGet, "/Artists", q, nil, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// Item fetches one item scoped to the signed-in user.
func (c *Client) Item(ctx context.Context, itemID string) (*BaseItem, error) {
	state := c.snapshot()
	q := url.Values{}
	q.Set("userId", state.UserID)
	q.Set("enableImages", "true")

	var out BaseItem
	if err := c.doJSON(ctx, http.MethodGet, "/Items/"+url.PathEscape(itemID), q, nil, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// PlaylistItems returns the tracks of a playlist.
func (c *Client) PlaylistItems(ctx context.Context, playlistID string, q url.Values) (*QueryResult, error) {
	var out QueryResult
	endpoint := "/Playlists/" + url.PathEscape(playlistID) + "/Items"
	if err := c.doJSON(ctx, http.MethodGet, endpoint, q, nil, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// Lyrics fetches lyrics for an audio item. Servers without lyrics return
// 404, surfaced as a plain error.
func (c *Client) Lyrics(ctx context.Context, itemID string) (*Lyrics, error) {
	var out Lyrics
	if err := c.doJSON(ctx, http.MethodGet, "/Audio/"+url.PathEscape(itemID)+"/Lyrics", nil, nil, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// Playback telemetry. These are fire-and-forget from the player's
// perspective; the reporter logs failures and never propagates them.

func (c *Client) ReportPlaybackStart(ctx context.Context, info PlaybackStartInfo) error {
	return c.doJSON(ctx, http.MethodPost, "/Sessions/Playing", nil, info, nil, "")
}

func (c *Client) ReportPlaybackProgress(ctx context.Context, info PlaybackProgressInfo) error {
	return c.doJSON(ctx, http.MethodPost, "/Sessions/Playing/Progress", nil, info, nil, "")
}

func (c *Client) ReportPlaybackStopped(ctx context.Context, info PlaybackStopInfo) error {
	return c.doJSON(ctx, http.MethodPost, "/Sessions/Playing/Stopped", nil, info, nil, "")
}
