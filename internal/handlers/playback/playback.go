package playback

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"muufin/internal/jellyfin"
	lib "muufin/internal/library"
	pb "muufin/internal/playback"
	"muufin/internal/settings"
)

type QueueRequest struct {
	ItemIDs    []string `json:"item_ids"`
	AlbumID    string   `json:"album_id"`
	PlaylistID string   `json:"playlist_id"`
	StartID    string   `json:"start_id"`
	StartIndex int      `json:"start_index"`
}

// Queue builds a play queue from explicit item ids, an album, or a
// playlist, and starts playback.
func Queue(ctrl *pb.Controller, repo *lib.Repository, st *settings.Service) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req QueueRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		tracks, err := resolveTracks(c, repo, req)
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
		if len(tracks) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no tracks to play"})
		}

		if err := ctrl.PlayQueue(tracks, req.StartID, req.StartIndex, st.PreferLosslessDirectPlay()); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(ctrl.Status())
	}
}

func resolveTracks(ctx context.Context, repo *lib.Repository, req QueueRequest) ([]jellyfin.BaseItem, error) {
	switch {
	case req.AlbumID != "":
		result, err := repo.AlbumTracks(ctx, req.AlbumID)
		if err != nil {
			return nil, err
		}
		return result.Items, nil
	case req.PlaylistID != "":
		result, err := repo.PlaylistTracks(ctx, req.PlaylistID, lib.Page{})
		if err != nil {
			return nil, err
		}
		return result.Items, nil
	default:
		tracks := make([]jellyfin.BaseItem, 0, len(req.ItemIDs))
		for _, id := range req.ItemIDs {
			item, err := repo.Item(ctx, id)
			if err != nil {
				return nil, err
			}
			tracks = append(tracks, *item)
		}
		return tracks, nil
	}
}

func Resume(ctrl *pb.Controller) fiber.Handler {
	return func(c fiber.Ctx) error {
		ctrl.Play()
		return c.JSON(ctrl.Status())
	}
}

func Pause(ctrl *pb.Controller) fiber.Handler {
	return func(c fiber.Ctx) error {
		ctrl.Pause()
		return c.JSON(ctrl.Status())
	}
}

func Stop(ctrl *pb.Controller) fiber.Handler {
	return func(c fiber.Ctx) error {
		ctrl.Stop()
		return c.JSON(ctrl.Status())
	}
}

type seekRequest struct {
	PositionMs int64 `json:"position_ms"`
}

func Seek(ctrl *pb.Controller) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req seekRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if req.PositionMs < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "position_ms must not be negative"})
		}
		ctrl.SeekTo(req.PositionMs)
		return c.JSON(ctrl.Status())
	}
}

func Status(ctrl *pb.Controller) fiber.Handler {
	return func(c fiber.Ctx) error {
		return c.JSON(ctrl.Status())
	}
}
