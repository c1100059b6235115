package auth

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	authority "muufin/internal/auth"
	"muufin/internal/httpx"
	"muufin/internal/jellyfin"
)

type LoginRequest struct {
	Server   string `json:"server"`
	Username string `json:"username"`
	Password string `json:"password"`
	TLSMode  string `json:"tls_mode"`
}

type StateResponse struct {
	SignedIn  bool   `json:"signed_in"`
	ServerURL string `json:"server_url,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	DeviceID  string `json:"device_id"`
	TLSMode   string `json:"tls_mode"`
	HasAnchor bool   `json:"has_trust_anchor"`
}

// Login signs in with username and password.
func Login(mgr *authority.Manager) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req LoginRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if req.Server == "" || req.Username == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "server and username are required"})
		}
		mode := authority.TrustSystem
		if req.TLSMode != "" {
			var err error
			if mode, err = authority.ParseTrustMode(req.TLSMode); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
		}

		if err := mgr.SignIn(c, req.Server, req.Username, req.Password, mode); err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(stateResponse(mgr))
	}
}

type quickConnectWaitRequest struct {
	Server  string `json:"server"`
	Secret  string `json:"secret"`
	TLSMode string `json:"tls_mode"`
}

type quickConnectInitiateRequest struct {
	Server  string `json:"server"`
	TLSMode string `json:"tls_mode"`
}

// QuickConnectInitiate starts the code-pairing handshake against a server.
func QuickConnectInitiate(mgr *authority.Manager, client *jellyfin.Client) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req quickConnectInitiateRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if req.Server == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "server is required"})
		}
		mode := authority.TrustSystem
		if req.TLSMode != "" {
			var err error
			if mode, err = authority.ParseTrustMode(req.TLSMode); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
		}
		if err := mgr.Configure(req.Server, mode); err != nil {
			return errorResponse(c, err)
		}

		state, err := client.QuickConnectInitiate(c)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(fiber.Map{"code": state.Code, "secret": state.Secret})
	}
}

// QuickConnectWait blocks until the pairing is approved, then completes
// sign-in with the returned token.
func QuickConnectWait(mgr *authority.Manager, client *jellyfin.Client) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req quickConnectWaitRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if req.Secret == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "secret is required"})
		}

		result, err := client.WaitForQuickConnect(c, req.Secret)
		if err != nil {
			return errorResponse(c, err)
		}

		server := req.Server
		if server == "" {
			server = mgr.Snapshot().ServerBaseURL
		}
		mode := mgr.Snapshot().TrustMode
		if req.TLSMode != "" {
			if mode, err = authority.ParseTrustMode(req.TLSMode); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
		}
		userID := result.ResolvedUserID()
		if err := mgr.SignInWithExchange(server, userID, result.AccessToken, mode); err != nil {
			return errorResponse(c, err)
		}
		if userID == "" {
			// Older servers omit the user from the pairing result; the
			// exchange above installed the token, so ask directly.
			user, err := client.CurrentUser(c)
			if err != nil {
				return errorResponse(c, err)
			}
			if err := mgr.SignInWithExchange(server, user.ID, result.AccessToken, mode); err != nil {
				return errorResponse(c, err)
			}
		}
		return c.JSON(stateResponse(mgr))
	}
}

// SignOut clears credentials, keeping device identity and TLS preferences.
func SignOut(mgr *authority.Manager) fiber.Handler {
	return func(c fiber.Ctx) error {
		mgr.SignOut()
		return c.JSON(stateResponse(mgr))
	}
}

// State returns the redacted authority state.
func State(mgr *authority.Manager) fiber.Handler {
	return func(c fiber.Ctx) error {
		return c.JSON(stateResponse(mgr))
	}
}

type tlsRequest struct {
	Mode string `json:"mode"`
}

// SetTLS switches the trust policy.
func SetTLS(mgr *authority.Manager) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req tlsRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		mode, err := authority.ParseTrustMode(req.Mode)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		mgr.SetTrustMode(mode)
		return c.JSON(stateResponse(mgr))
	}
}

// ImportCertificate imports a PEM or DER trust anchor from the request
// body. Invalid material is rejected without mutating state.
func ImportCertificate(mgr *authority.Manager) fiber.Handler {
	return func(c fiber.Ctx) error {
		body := c.Body()
		if len(body) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "certificate body is required"})
		}
		if err := mgr.ImportTrustAnchor(body); err != nil {
			if errors.Is(err, authority.ErrInvalidCertificate) {
				return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
			}
			return errorResponse(c, err)
		}
		return c.JSON(stateResponse(mgr))
	}
}

// DeleteCertificate removes the imported trust anchor.
func DeleteCertificate(mgr *authority.Manager) fiber.Handler {
	return func(c fiber.Ctx) error {
		mgr.ClearTrustAnchor()
		return c.JSON(stateResponse(mgr))
	}
}

func stateResponse(mgr *authority.Manager) StateResponse {
	s := mgr.Snapshot()
	return StateResponse{
		SignedIn:  s.IsSignedIn(),
		ServerURL: s.ServerBaseURL,
		UserID:    s.UserID,
		DeviceID:  s.DeviceID,
		TLSMode:   s.TrustMode.String(),
		HasAnchor: len(s.TrustAnchorPEM) > 0,
	}
}

// errorResponse maps the error taxonomy onto HTTP statuses.
func errorResponse(c fiber.Ctx, err error) error {
	var authErr *jellyfin.AuthError
	var trustErr *httpx.TrustError
	var netErr *httpx.NetworkError
	switch {
	case errors.As(err, &authErr):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &trustErr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error(), "kind": "trust"})
	case errors.As(err, &netErr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error(), "kind": "network"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
