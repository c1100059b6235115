package httpx

import (
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"muufin/internal/auth"
	"muufin/internal/logging"
)

const (
	connectTimeout = 10 * time.Second
	apiTimeout     = 30 * time.Second
)

// Factory constructs and caches the two HTTP clients every outbound request
// goes through: a bounded-timeout client for API calls and an
// unbounded-read client for media streaming. Clients are rebuilt lazily
// after Rebuild; requests in flight on an old client are unaffected.
type Factory struct {
	snapshot func() auth.State
	log      logging.Logger

	api       atomic.Pointer[http.Client]
	streaming atomic.Pointer[http.Client]
}

func NewFactory(snapshot func() auth.State, log logging.Logger) *Factory {
	return &Factory{snapshot: snapshot, log: log}
}

// APIClient returns the client for JSON API calls (30s overall timeout).
func (f *Factory) APIClient() *http.Client {
	if c := f.api.Load(); c != nil {
		return c
	}
	c := f.build(false)
	f.api.Store(c)
	return c
}

// StreamingClient returns the client for media byte streams. It has no
// overall timeout so long-running reads are not cut off mid-track.
func (f *Factory) StreamingClient() *http.Client {
	if c := f.streaming.Load(); c != nil {
		return c
	}
	c := f.build(true)
	f.streaming.Store(c)
	return c
}

// Rebuild drops the cached clients so the next access reconstructs them from
// the current authority snapshot. This is the sole explicit invalidation
// point for transport state.
func (f *Factory) Rebuild() {
	f.api.Store(nil)
	f.streaming.Store(nil)
	f.log.Debug("HTTP clients invalidated, will rebuild on next use")
}

func (f *Factory) build(forStreaming bool) *http.Client {
	state := f.snapshot()

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       tlsConfigFor(state, f.log),
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   connectTimeout,
		ExpectContinueTimeout: time.Second,
	}

	accept := "application/json"
	timeout := apiTimeout
	if forStreaming {
		accept = "*/*"
		timeout = 0
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &authTransport{
			base:         transport,
			snapshot:     f.snapshot,
			accept:       accept,
			forStreaming: forStreaming,
		},
	}
}

// authTransport injects the MediaBrowser authorization header on every
// request unless the caller supplied one (the unauthenticated pre-login
// variant does). Streaming requests additionally carry the legacy duplicate
// token headers some server versions require.
type authTransport struct {
	base         http.RoundTripper
	snapshot     func() auth.State
	accept       string
	forStreaming bool
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	state := t.snapshot()
	out := req.Clone(req.Context())

	if out.Header.Get("Accept") == "" {
		out.Header.Set("Accept", t.accept)
	}
	if out.Header.Get("Authorization") == "" {
		out.Header.Set("Authorization", state.Authorization(state.AccessToken != ""))
	}
	if t.forStreaming && state.AccessToken != "" {
		out.Header.Set("X-Emby-Authorization", state.Authorization(true))
		out.Header.Set("X-Emby-Token", state.AccessToken)
		out.Header.Set("X-MediaBrowser-Token", state.AccessToken)
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, Classify(err)
	}
	return resp, nil
}
