package playback

// DeliveryMode selects between the two server delivery paths.
type DeliveryMode int

const (
	// ModeDirect streams the original file bytes unmodified.
	ModeDirect DeliveryMode = iota
	// ModeAdaptive streams server-transcoded segments from a playlist
	// manifest.
	ModeAdaptive
)

func (m DeliveryMode) String() string {
	if m == ModeDirect {
		return "direct"
	}
	return "adaptive"
}

// PlayMethod maps the mode to the wire value reported in telemetry.
func (m DeliveryMode) PlayMethod() string {
	if m == ModeDirect {
		return "DirectPlay"
	}
	return "Transcode"
}

// MediaDescriptor carries per-track delivery metadata alongside a queue
// item. It is immutable; fallback supersedes it with a new instance.
type MediaDescriptor struct {
	TrackID             string
	DirectPlayURL       string
	AdaptivePlaylistURL string
	Mode                DeliveryMode
	// HasFallenBack marks a descriptor produced by a direct-to-adaptive
	// fallback. A descriptor with this set never falls back again.
	HasFallenBack bool
	ArtworkItemID string
	ArtworkTag    string
	// ArtworkURL carries an ApiKey query parameter because image loaders
	// do not forward the Authorization header.
	ArtworkURL string
}

// URL returns the media URL for the descriptor's current mode.
func (d MediaDescriptor) URL() string {
	if d.Mode == ModeDirect {
		return d.DirectPlayURL
	}
	return d.AdaptivePlaylistURL
}

// WithFallback derives the adaptive-mode replacement descriptor.
func (d MediaDescriptor) WithFallback() MediaDescriptor {
	d.Mode = ModeAdaptive
	d.HasFallenBack = true
	return d
}
