package auth

import (
	"fmt"
	"strings"
)

// TrustMode selects how server certificates are validated.
type TrustMode int

const (
	// TrustSystem uses the operating system root store only.
	TrustSystem TrustMode = iota
	// TrustDisabled accepts any certificate and hostname. Explicit opt-in.
	TrustDisabled
	// TrustCustomCA trusts the union of system roots and an imported anchor.
	TrustCustomCA
)

func (m TrustMode) String() string {
	switch m {
	case TrustDisabled:
		return "disabled"
	case TrustCustomCA:
		return "custom-ca"
	default:
		return "system"
	}
}

// ParseTrustMode maps the wire/storage representation back to a TrustMode.
func ParseTrustMode(s string) (TrustMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "system":
		return TrustSystem, nil
	case "disabled", "insecure":
		return TrustDisabled, nil
	case "custom-ca", "custom":
		return TrustCustomCA, nil
	default:
		return TrustSystem, fmt.Errorf("unknown trust mode %q", s)
	}
}

// State is an immutable snapshot of the authority context. Components read a
// fresh snapshot per operation instead of holding long-lived references.
type State struct {
	ServerBaseURL string
	UserID        string
	AccessToken   string

	DeviceID   string
	ClientName string
	DeviceName string
	AppVersion string

	TrustMode      TrustMode
	TrustAnchorPEM []byte
}

// IsSignedIn reports whether credentials for a server are present.
func (s State) IsSignedIn() bool {
	return s.ServerBaseURL != "" && s.UserID != "" && s.AccessToken != ""
}

// BaseURL returns the server URL without a trailing slash.
func (s State) BaseURL() string {
	return strings.TrimRight(strings.TrimSpace(s.ServerBaseURL), "/")
}

// Authorization builds the MediaBrowser authorization header value. The token
// pair is appended only when includeToken is set and a token exists.
func (s State) Authorization(includeToken bool) string {
	parts := []string{
		fmt.Sprintf("Client=%q", s.ClientName),
		fmt.Sprintf("Device=%q", s.DeviceName),
		fmt.Sprintf("DeviceId=%q", s.DeviceID),
		fmt.Sprintf("Version=%q", s.AppVersion),
	}
	if includeToken && s.AccessToken != "" {
		parts = append(parts, fmt.Sprintf("Token=%q", s.AccessToken))
	}
	return "MediaBrowser " + strings.Join(parts, ", ")
}
