package auth

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"sync"

	"muufin/internal/logging"
	"muufin/internal/store"

	"github.com/google/uuid"
)

// ErrInvalidCertificate is returned when imported trust anchor bytes do not
// parse as an X.509 certificate. No state is mutated in that case.
var ErrInvalidCertificate = errors.New("invalid certificate")

// ErrNotConfigured is returned from SignIn when no authenticator is wired.
var ErrNotConfigured = errors.New("authenticator not configured")

const (
	keyServerBaseURL  = "auth.server_base_url"
	keyUserID         = "auth.user_id"
	keyAccessToken    = "auth.access_token"
	keyDeviceID       = "auth.device_id"
	keyTrustMode      = "auth.tls_mode"
	keyTrustAnchorPEM = "auth.trust_anchor_pem"
)

// AuthenticateFunc performs the credential exchange against the server using
// the given snapshot (which already carries the target server and TLS mode).
type AuthenticateFunc func(ctx context.Context, state State, username, password string) (userID, accessToken string, err error)

// Manager owns the process-wide authority context: current server,
// credentials, device identity and TLS trust policy. Every durable mutation
// is persisted and fans out to registered on-change hooks so dependent HTTP
// clients rebuild before the next request.
type Manager struct {
	mu    sync.RWMutex
	state State

	store        *store.Store
	authenticate AuthenticateFunc
	hooks        []func(State)
	log          logging.Logger
}

// NewManager loads persisted authority state. The device id is minted once
// and survives sign-out.
func NewManager(st *store.Store, clientName, deviceName, appVersion string, log logging.Logger) (*Manager, error) {
	deviceID, err := st.Get(keyDeviceID, "")
	if err != nil {
		return nil, err
	}
	if deviceID == "" {
		deviceID = uuid.NewString()
		if err := st.Set(keyDeviceID, deviceID); err != nil {
			return nil, fmt.Errorf("persist device id: %w", err)
		}
	}

	baseURL, _ := st.Get(keyServerBaseURL, "")
	userID, _ := st.Get(keyUserID, "")
	token, _ := st.Get(keyAccessToken, "")
	modeRaw, _ := st.Get(keyTrustMode, "system")
	anchorPEM, _ := st.Get(keyTrustAnchorPEM, "")

	mode, err := ParseTrustMode(modeRaw)
	if err != nil {
		log.Warn("Unknown persisted trust mode, falling back to system", "value", modeRaw)
		mode = TrustSystem
	}

	m := &Manager{
		state: State{
			ServerBaseURL:  baseURL,
			UserID:         userID,
			AccessToken:    token,
			DeviceID:       deviceID,
			ClientName:     clientName,
			DeviceName:     deviceName,
			AppVersion:     appVersion,
			TrustMode:      mode,
			TrustAnchorPEM: []byte(anchorPEM),
		},
		store: st,
		log:   log,
	}
	return m, nil
}

// SetAuthenticator wires the credential exchange implementation. Set once at
// startup; kept out of the constructor to break the client/authority cycle.
func (m *Manager) SetAuthenticator(fn AuthenticateFunc) {
	m.mu.Lock()
	m.authenticate = fn
	m.mu.Unlock()
}

// OnChange registers a hook invoked with the new snapshot after every
// mutation. Hooks run synchronously on the mutating goroutine.
func (m *Manager) OnChange(fn func(State)) {
	m.mu.Lock()
	m.hooks = append(m.hooks, fn)
	m.mu.Unlock()
}

// Snapshot returns a copy of the current authority state.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) notify(s State) {
	m.mu.RLock()
	hooks := make([]func(State), len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn(s)
	}
}

// Configure applies the target server and TLS mode without touching
// credentials. Used before the quick-connect handshake, which needs the
// transport pointed at the server while still unauthenticated.
func (m *Manager) Configure(server string, tlsMode TrustMode) error {
	m.mu.Lock()
	m.state.ServerBaseURL = strings.TrimRight(strings.TrimSpace(server), "/")
	m.state.TrustMode = tlsMode
	next := m.state
	m.mu.Unlock()

	if err := m.store.Set(keyServerBaseURL, next.ServerBaseURL); err != nil {
		return err
	}
	_ = m.store.Set(keyTrustMode, tlsMode.String())
	m.notify(next)
	return nil
}

// SignIn authenticates by username and password. The server URL and TLS mode
// are applied (and clients rebuilt) before the exchange so the login request
// itself honors the requested trust policy.
func (m *Manager) SignIn(ctx context.Context, server, username, password string, tlsMode TrustMode) error {
	m.mu.Lock()
	fn := m.authenticate
	m.state.ServerBaseURL = strings.TrimRight(strings.TrimSpace(server), "/")
	m.state.TrustMode = tlsMode
	snapshot := m.state
	hooks := m.hooks
	m.mu.Unlock()

	if fn == nil {
		return ErrNotConfigured
	}

	_ = m.store.Set(keyServerBaseURL, snapshot.ServerBaseURL)
	_ = m.store.Set(keyTrustMode, tlsMode.String())
	for _, h := range hooks {
		h(snapshot)
	}

	userID, token, err := fn(ctx, snapshot, username, password)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.state.UserID = userID
	m.state.AccessToken = token
	next := m.state
	m.mu.Unlock()

	if err := m.persistCredentials(next); err != nil {
		return err
	}
	m.notify(next)
	m.log.Info("Signed in", "server", next.ServerBaseURL, "user_id", userID)
	return nil
}

// SignInWithExchange installs credentials obtained out of band (the
// quick-connect handshake).
func (m *Manager) SignInWithExchange(server, userID, accessToken string, tlsMode TrustMode) error {
	m.mu.Lock()
	m.state.ServerBaseURL = strings.TrimRight(strings.TrimSpace(server), "/")
	m.state.UserID = userID
	m.state.AccessToken = accessToken
	m.state.TrustMode = tlsMode
	next := m.state
	m.mu.Unlock()

	_ = m.store.Set(keyTrustMode, tlsMode.String())
	if err := m.persistCredentials(next); err != nil {
		return err
	}
	m.notify(next)
	m.log.Info("Signed in via exchange", "server", next.ServerBaseURL, "user_id", userID)
	return nil
}

// SignOut clears credentials while preserving device identity and TLS
// preferences.
func (m *Manager) SignOut() {
	m.mu.Lock()
	m.state.ServerBaseURL = ""
	m.state.UserID = ""
	m.state.AccessToken = ""
	next := m.state
	m.mu.Unlock()

	_ = m.store.Delete(keyServerBaseURL)
	_ = m.store.Delete(keyUserID)
	_ = m.store.Delete(keyAccessToken)
	m.notify(next)
	m.log.Info("Signed out")
}

// SetTrustMode switches the TLS validation policy. Disabling verification is
// a security-relevant state and logged as such.
func (m *Manager) SetTrustMode(mode TrustMode) {
	m.mu.Lock()
	m.state.TrustMode = mode
	next := m.state
	m.mu.Unlock()

	_ = m.store.Set(keyTrustMode, mode.String())
	if mode == TrustDisabled {
		m.log.Warn("TLS certificate verification DISABLED by user setting")
	}
	m.notify(next)
}

// ImportTrustAnchor validates and persists a custom CA or self-signed server
// certificate. PEM and raw DER are both accepted.
func (m *Manager) ImportTrustAnchor(data []byte) error {
	pemBytes, err := normalizeCertificate(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.state.TrustAnchorPEM = pemBytes
	m.state.TrustMode = TrustCustomCA
	next := m.state
	m.mu.Unlock()

	_ = m.store.Set(keyTrustAnchorPEM, string(pemBytes))
	_ = m.store.Set(keyTrustMode, TrustCustomCA.String())
	m.notify(next)
	m.log.Info("Imported custom trust anchor")
	return nil
}

// ClearTrustAnchor removes the imported anchor and falls back to system roots.
func (m *Manager) ClearTrustAnchor() {
	m.mu.Lock()
	m.state.TrustAnchorPEM = nil
	if m.state.TrustMode == TrustCustomCA {
		m.state.TrustMode = TrustSystem
	}
	next := m.state
	m.mu.Unlock()

	_ = m.store.Delete(keyTrustAnchorPEM)
	_ = m.store.Set(keyTrustMode, next.TrustMode.String())
	m.notify(next)
}

func (m *Manager) persistCredentials(s State) error {
	if err := m.store.Set(keyServerBaseURL, s.ServerBaseURL); err != nil {
		return err
	}
	if err := m.store.Set(keyUserID, s.UserID); err != nil {
		return err
	}
	return m.store.Set(keyAccessToken, s.AccessToken)
}

// normalizeCertificate parses the input as PEM or DER and returns it PEM
// encoded, or ErrInvalidCertificate.
func normalizeCertificate(data []byte) ([]byte, error) {
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidCertificate, block.Type)
		}
		if _, err := x509.ParseCertificate(block.Bytes); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
		}
		return pem.EncodeToMemory(block), nil
	}

	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}), nil
}
