package settings

import (
	"github.com/gofiber/fiber/v3"

	svc "muufin/internal/settings"
)

const (
	keyPreferLossless = "prefer_lossless_direct_play"
	keyReporting      = "enable_playback_reporting"
)

type updateRequest struct {
	Value bool `json:"value"`
}

// GetAll returns every user setting.
func GetAll(s *svc.Service) fiber.Handler {
	return func(c fiber.Ctx) error {
		return c.JSON(s.Snapshot())
	}
}

// Get returns one setting by key.
func Get(s *svc.Service) fiber.Handler {
	return func(c fiber.Ctx) error {
		snap := s.Snapshot()
		switch c.Params("key") {
		case keyPreferLossless:
			return c.JSON(fiber.Map{"key": keyPreferLossless, "value": snap.PreferLosslessDirectPlay})
		case keyReporting:
			return c.JSON(fiber.Map{"key": keyReporting, "value": snap.PlaybackReportingEnabled})
		default:
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown setting"})
		}
	}
}

// Update flips one setting. Subscribers (the reporter) react immediately.
func Update(s *svc.Service) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req updateRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		key := c.Params("key")
		var err error
		switch key {
		case keyPreferLossless:
			err = s.SetPreferLosslessDirectPlay(req.Value)
		case keyReporting:
			err = s.SetPlaybackReportingEnabled(req.Value)
		default:
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown setting"})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"key": key, "value": req.Value})
	}
}
