package health

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"muufin/internal/jellyfin"
	"muufin/internal/store"
	"muufin/internal/version"
)

type Status struct {
	OK        bool         `json:"ok"`
	Timestamp string       `json:"timestamp"`
	Build     version.Info `json:"build"`
	Database  CheckResult  `json:"database"`
	Server    ServerResult `json:"server"`
}

type CheckResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type ServerResult struct {
	OK      bool   `json:"ok"`
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Health reports local store health and media server reachability.
func Health(st *store.Store, client *jellyfin.Client) fiber.Handler {
	return func(c fiber.Ctx) error {
		status := Status{OK: true, Timestamp: time.Now().UTC().Format(time.RFC3339), Build: version.Get()}

		if err := st.DB().Ping(); err != nil {
			status.OK = false
			status.Database.Error = err.Error()
		} else {
			status.Database.OK = true
		}

		info, err := client.PublicSystemInfo(c)
		if err != nil {
			status.OK = false
			status.Server.Error = err.Error()
		} else {
			status.Server.OK = true
			status.Server.Name = info.ServerName
			status.Server.Version = info.Version
		}

		code := fiber.StatusOK
		if !status.OK {
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(status)
	}
}
