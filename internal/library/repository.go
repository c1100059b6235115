package library

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"muufin/internal/auth"
	"muufin/internal/jellyfin"
)

// Page bounds a listing query.
type Page struct {
	StartIndex int
	Limit      int
}

func (p Page) apply(q url.Values) {
	if p.StartIndex > 0 {
		q.Set("startIndex", strconv.Itoa(p.StartIndex))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
}

const listingCacheTTL = 30 * time.Second

// Repository is the query layer over the server's item API. Every query is
// scoped to the signed-in user from the current authority snapshot.
// Listing queries are cached briefly; see queryCache.
type Repository struct {
	client   *jellyfin.Client
	snapshot func() auth.State
	cache    *queryCache
}

func New(client *jellyfin.Client, snapshot func() auth.State) *Repository {
	return &Repository{
		client:   client,
		snapshot: snapshot,
		cache:    newQueryCache(listingCacheTTL),
	}
}

// InvalidateCache drops cached listings. Wired to authority changes.
func (r *Repository) InvalidateCache() {
	r.cache.invalidate()
}

// CacheStats exposes listing-cache counters.
func (r *Repository) CacheStats() CacheStats {
	return r.cache.stats()
}

// cachedItems serves the query from cache when possible.
func (r *Repository) cachedItems(ctx context.Context, endpoint string, q url.Values) (*jellyfin.QueryResult, error) {
	key := endpoint + "?" + q.Encode()
	if result, ok := r.cache.get(key); ok {
		return result, nil
	}

	var result *jellyfin.QueryResult
	var err error
	switch endpoint {
	case "/Artists":
		result, err = r.client.Artists(ctx, q)
	default:
		result, err = r.client.Items(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	r.cache.set(key, result)
	return result, nil
}

func (r *Repository) baseQuery() url.Values {
	q := url.Values{}
	q.Set("userId", r.snapshot().UserID)
	q.Set("enableImages", "true")
	q.Set("imageTypeLimit", "1")
	return q
}

// Albums lists music albums sorted by name.
func (r *Repository) Albums(ctx context.Context, page Page) (*jellyfin.QueryResult, error) {
	q := r.baseQuery()
	q.Set("includeItemTypes", "MusicAlbum")
	q.Set("recursive", "true")
	q.Set("sortBy", "SortName")
	q.Set("sortOrder", "Ascending")
	page.apply(q)
	return r.cachedItems(ctx, "/Items", q)
}

// RecentAlbums lists albums by server add date, newest first.
func (r *Repository) RecentAlbums(ctx context.Context, page Page) (*jellyfin.QueryResult, error) {
	q := r.baseQuery()
	q.Set("includeItemTypes", "MusicAlbum")
	q.Set("recursive", "true")
	q.Set("sortBy", "DateCreated")
	q.Set("sortOrder", "Descending")
	page.apply(q)
	return r.cachedItems(ctx, "/Items", q)
}

// Artists lists album artists sorted by name.
func (r *Repository) Artists(ctx context.Context, page Page) (*jellyfin.QueryResult, error) {
	q := r.baseQuery()
	q.Set("sortBy", "SortName")
	q.Set("sortOrder", "Ascending")
	page.apply(q)
	return r.cachedItems(ctx, "/Artists", q)
}

// ArtistAlbums lists an artist's albums, newest first.
func (r *Repository) ArtistAlbums(ctx context.Context, artistID string, page Page) (*jellyfin.QueryResult, error) {
	q := r.baseQuery()
	q.Set("includeItemTypes", "MusicAlbum")
	q.Set("recursive", "true")
	q.Set("albumArtistIds", artistID)
	q.Set("sortBy", "PremiereDate,ProductionYear,SortName")
	q.Set("sortOrder", "Descending")
	page.apply(q)
	return r.cachedItems(ctx, "/Items", q)
}

// AlbumTracks lists an album's tracks in disc/track order.
func (r *Repository) AlbumTracks(ctx context.Context, albumID string) (*jellyfin.QueryResult, error) {
	q := r.baseQuery()
	q.Set("includeItemTypes", "Audio")
	q.Set("parentId", albumID)
	q.Set("sortBy", "ParentIndexNumber,IndexNumber,SortName")
	q.Set("sortOrder", "Ascending")
	return r.client.Items(ctx, q)
}

// Playlists lists the user's playlists.
func (r *Repository) Playlists(ctx context.Context, page Page) (*jellyfin.QueryResult, error) {
	q := r.baseQuery()
	q.Set("includeItemTypes", "Playlist")
	q.Set("recursive", "true")
	q.Set("sortBy", "SortName")
	q.Set("sortOrder", "Ascending")
	page.apply(q)
	return r.cachedItems(ctx, "/Items", q)
}

// PlaylistTracks lists a playlist's entries in playlist order.
func (r *Repository) PlaylistTracks(ctx context.Context, playlistID string, page Page) (*jellyfin.QueryResult, error) {
	q := r.baseQuery()
	page.apply(q)
	return r.client.PlaylistItems(ctx, playlistID, q)
}

// Search runs a term search across audio, albums, artists, and playlists.
func (r *Repository) Search(ctx context.Context, term string, page Page) (*jellyfin.QueryResult, error) {
	q := r.baseQuery()
	q.Set("searchTerm", term)
	q.Set("includeItemTypes", "Audio,MusicAlbum,MusicArtist,Playlist")
	q.Set("recursive", "true")
	page.apply(q)
	return r.client.Items(ctx, q)
}

// Item fetches a single item.
func (r *Repository) Item(ctx context.Context, itemID string) (*jellyfin.BaseItem, error) {
	return r.client.Item(ctx, itemID)
}

// Lyrics fetches an audio item's lyrics, when the server has them.
func (r *Repository) Lyrics(ctx context.Context, itemID string) (*jellyfin.Lyrics, error) {
	return r.client.Lyrics(ctx, itemID)
}
