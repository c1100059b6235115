package library

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"muufin/internal/httpx"
	"muufin/internal/jellyfin"
	lib "muufin/internal/library"
)

func page(c fiber.Ctx) lib.Page {
	return lib.Page{
		StartIndex: fiber.Query[int](c, "startIndex", 0),
		Limit:      fiber.Query[int](c, "limit", 100),
	}
}

// Query failures surface as an empty list plus an error flag, matching the
// listing shape on success.
func listResponse(c fiber.Ctx, result *jellyfin.QueryResult, err error) error {
	if err != nil {
		var authErr *jellyfin.AuthError
		code := fiber.StatusBadGateway
		if errors.As(err, &authErr) {
			code = fiber.StatusUnauthorized
		}
		return c.Status(code).JSON(fiber.Map{
			"items": []jellyfin.BaseItem{},
			"total": 0,
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"items": result.Items,
		"total": result.TotalRecordCount,
	})
}

func Albums(repo *lib.Repository) fiber.Handler {
	return func(c fiber.Ctx) error {
		if fiber.Query[string](c, "sort", "") == "recent" {
			result, err := repo.RecentAlbums(c, page(c))
			return listResponse(c, result, err)
		}
		result, err := repo.Albums(c, page(c))
		return listResponse(c, result, err)
	}
}

func Artists(repo *lib.Repository) fiber.Handler {
	return func(c fiber.Ctx) error {
		result, err := repo.Artists(c, page(c))
		return listResponse(c, result, err)
	}
}

func Playlists(repo *lib.Repository) fiber.Handler {
	return func(c fiber.Ctx) error {
		result, err := repo.Playlists(c, page(c))
		return listResponse(c, result, err)
	}
}

func AlbumTracks(repo *lib.Repository) fiber.Handler {
	return func(c fiber.Ctx) error {
		result, err := repo.AlbumTracks(c, c.Params("id"))
		return listResponse(c, result, err)
	}
}

func ArtistAlbums(repo *lib.Repository) fiber.Handler {
	return func(c fiber.Ctx) error {
		result, err := repo.ArtistAlbums(c, c.Params("id"), page(c))
		return listResponse(c, result, err)
	}
}

func PlaylistTracks(repo *lib.Repository) fiber.Handler {
	return func(c fiber.Ctx) error {
		result, err := repo.PlaylistTracks(c, c.Params("id"), page(c))
		return listResponse(c, result, err)
	}
}

func Search(repo *lib.Repository) fiber.Handler {
	return func(c fiber.Ctx) error {
		term := fiber.Query[string](c, "q", "")
		if term == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "q is required"})
		}
		result, err := repo.Search(c, term, page(c))
		return listResponse(c, result, err)
	}
}

func Item(repo *lib.Repository) fiber.Handler {
	return func(c fiber.Ctx) error {
		item, err := repo.Item(c, c.Params("id"))
		if err != nil {
			return itemError(c, err)
		}
		return c.JSON(item)
	}
}

func Lyrics(repo *lib.Repository) fiber.Handler {
	return func(c fiber.Ctx) error {
		lyrics, err := repo.Lyrics(c, c.Params("id"))
		if err != nil {
			return itemError(c, err)
		}
		return c.JSON(lyrics)
	}
}

func itemError(c fiber.Ctx, err error) error {
	var authErr *jellyfin.AuthError
	var netErr *httpx.NetworkError
	switch {
	case errors.As(err, &authErr):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &netErr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
}
