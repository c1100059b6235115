package playback

import (
	"muufin/internal/auth"
	"muufin/internal/config"
	"muufin/internal/jellyfin"
)

// Resolver builds media descriptors for tracks. It reads a fresh authority
// snapshot per call so token or server changes apply to the next resolve.
type Resolver struct {
	snapshot func() auth.State
	cfg      *config.Config
}

func NewResolver(snapshot func() auth.State, cfg *config.Config) *Resolver {
	return &Resolver{snapshot: snapshot, cfg: cfg}
}

// Resolve produces a descriptor with both delivery URLs populated. The
// initial mode is Direct when preferLosslessDirect is set, Adaptive
// otherwise; only the controller's fallback changes it afterwards.
func (r *Resolver) Resolve(track jellyfin.BaseItem, preferLosslessDirect bool) MediaDescriptor {
	state := r.snapshot()

	mode := ModeAdaptive
	if preferLosslessDirect {
		mode = ModeDirect
	}

	artworkItemID, artworkTag := artworkIdentity(track)
	artworkURL := ""
	if artworkItemID != "" {
		artworkURL = jellyfin.ItemImageURL(state, artworkItemID, "Primary", jellyfin.ImageOptions{
			Tag:        artworkTag,
			MaxWidth:   r.cfg.ImgPrimaryMaxWidth,
			Quality:    r.cfg.ImgQuality,
			WithAPIKey: true,
		})
	}

	return MediaDescriptor{
		TrackID:             track.ID,
		DirectPlayURL:       jellyfin.AudioStreamURL(state, track.ID),
		AdaptivePlaylistURL: jellyfin.AudioPlaylistURL(state, track.ID, r.adaptiveOptions(0)),
		Mode:                mode,
		ArtworkItemID:       artworkItemID,
		ArtworkTag:          artworkTag,
		ArtworkURL:          artworkURL,
	}
}

// AdaptivePlaylistURLAt rebuilds the playlist URL with a nonzero start
// offset. Fallback uses it so the transcode resumes where the direct
// attempt stopped; the segment feed itself cannot seek.
func (r *Resolver) AdaptivePlaylistURLAt(trackID string, startMs int64) string {
	return jellyfin.AudioPlaylistURL(r.snapshot(), trackID, r.adaptiveOptions(startMs))
}

func (r *Resolver) adaptiveOptions(startMs int64) jellyfin.AdaptiveOptions {
	allowCopy := true
	opts := jellyfin.AdaptiveOptions{
		AudioCodec:           r.cfg.AudioCodec,
		SegmentContainer:     r.cfg.SegmentContainer,
		MaxAudioBitDepth:     16,
		AllowAudioStreamCopy: &allowCopy,
		StartPositionMs:      startMs,
	}
	if r.cfg.MaxAudioBitRate > 0 {
		opts.MaxStreamingBitrate = r.cfg.MaxAudioBitRate
		opts.AudioBitRate = r.cfg.MaxAudioBitRate
	}
	return opts
}

// artworkIdentity picks the track's own primary image, falling back to the
// parent album's. Missing artwork on both is fine; callers omit the URL.
func artworkIdentity(track jellyfin.BaseItem) (itemID, tag string) {
	if t := track.PrimaryImageTag(); t != "" {
		return track.ID, t
	}
	if track.AlbumID != "" && track.AlbumPrimaryImageTag != "" {
		return track.AlbumID, track.AlbumPrimaryImageTag
	}
	return "", ""
}
