package playback

import (
	"strings"
	"testing"

	"muufin/internal/jellyfin"
)

func TestResolveModeFollowsLosslessPreference(t *testing.T) {
	r := testResolver()
	track := jellyfin.BaseItem{ID: "abc", Name: "Track"}

	direct := r.Resolve(track, true)
	if direct.Mode != ModeDirect {
		t.Errorf("Expected direct mode with lossless preference, got %s", direct.Mode)
	}

	adaptive := r.Resolve(track, false)
	if adaptive.Mode != ModeAdaptive {
		t.Errorf("Expected adaptive mode without lossless preference, got %s", adaptive.Mode)
	}

	for _, d := range []MediaDescriptor{direct, adaptive} {
		if d.DirectPlayURL == "" || d.AdaptivePlaylistURL == "" {
			t.Errorf("Both URLs must be populated regardless of mode: %+v", d)
		}
		if d.HasFallenBack {
			t.Error("Fresh descriptor must not be marked fallen back")
		}
	}
}

func TestResolveAdaptiveURLShape(t *testing.T) {
	r := testResolver()
	d := r.Resolve(jellyfin.BaseItem{ID: "abc"}, false)

	u := d.AdaptivePlaylistURL
	for _, want := range []string{"deviceId=d1", "audioCodec=mp3", "segmentContainer=mp3", "api_key=t1"} {
		if !strings.Contains(u, want) {
			t.Errorf("Adaptive URL missing %q: %s", want, u)
		}
	}
	if strings.Contains(u, "startTimeTicks") {
		t.Errorf("Adaptive URL has startTimeTicks with no start offset: %s", u)
	}
}

func TestResolvePopulatesArtworkURL(t *testing.T) {
	r := testResolver()

	withArt := r.Resolve(jellyfin.BaseItem{
		ID:        "abc",
		ImageTags: map[string]string{"Primary": "tag1"},
	}, false)
	if withArt.ArtworkURL == "" {
		t.Fatal("Expected artwork URL for track with a primary image")
	}
	for _, want := range []string{"/Items/abc/Images/Primary", "tag=tag1", "ApiKey=t1"} {
		if !strings.Contains(withArt.ArtworkURL, want) {
			t.Errorf("Artwork URL missing %q: %s", want, withArt.ArtworkURL)
		}
	}

	noArt := r.Resolve(jellyfin.BaseItem{ID: "abc"}, false)
	if noArt.ArtworkURL != "" {
		t.Errorf("Expected empty artwork URL without image tags, got %s", noArt.ArtworkURL)
	}
}

func TestAdaptivePlaylistURLAtCarriesOffset(t *testing.T) {
	r := testResolver()

	u := r.AdaptivePlaylistURLAt("abc", 90_000)
	if !strings.Contains(u, "startTimeTicks=900000000") {
		t.Errorf("Expected startTimeTicks for 90000ms, got %s", u)
	}

	if u := r.AdaptivePlaylistURLAt("abc", 0); strings.Contains(u, "startTimeTicks") {
		t.Errorf("Zero offset must omit startTimeTicks: %s", u)
	}
}

func TestDescriptorURLMatchesMode(t *testing.T) {
	r := testResolver()
	d := r.Resolve(jellyfin.BaseItem{ID: "abc"}, true)

	if d.URL() != d.DirectPlayURL {
		t.Errorf("Direct descriptor URL() = %s, want direct URL", d.URL())
	}
	fallen := d.WithFallback()
	if fallen.URL() != fallen.AdaptivePlaylistURL {
		t.Errorf("Fallen descriptor URL() = %s, want adaptive URL", fallen.URL())
	}
	if d.HasFallenBack {
		t.Error("WithFallback must not mutate the original descriptor")
	}
}

func TestArtworkIdentityFallsBackToAlbum(t *testing.T) {
	own := jellyfin.BaseItem{
		ID:        "track1",
		ImageTags: map[string]string{"Primary": "tag-own"},
	}
	if id, tag := artworkIdentity(own); id != "track1" || tag != "tag-own" {
		t.Errorf("Expected own artwork, got id=%s tag=%s", id, tag)
	}

	borrowed := jellyfin.BaseItem{
		ID:                   "track2",
		AlbumID:              "album1",
		AlbumPrimaryImageTag: "tag-album",
	}
	if id, tag := artworkIdentity(borrowed); id != "album1" || tag != "tag-album" {
		t.Errorf("Expected album artwork, got id=%s tag=%s", id, tag)
	}

	none := jellyfin.BaseItem{ID: "track3"}
	if id, tag := artworkIdentity(none); id != "" || tag != "" {
		t.Errorf("Expected empty artwork identity, got id=%s tag=%s", id, tag)
	}
}
