package jellyfin

import (
	"strings"
	"testing"

	"muufin/internal/auth"
)

func testState() auth.State {
	return auth.State{
		ServerBaseURL: "https://h",
		UserID:        "u1",
		AccessToken:   "t1",
		DeviceID:      "d1",
		ClientName:    "Muufin",
		DeviceName:    "test",
		AppVersion:    "0.1.0",
	}
}

func TestTicksRoundTrip(t *testing.T) {
	cases := []struct {
		ticks int64
		ms    int64
	}{
		{0, 0},
		{10_000, 1},
		{10_000_000, 1_000},
		{2_400_000_000, 240_000},
	}
	for _, tc := range cases {
		if got := TicksToMs(tc.ticks); got != tc.ms {
			t.Errorf("TicksToMs(%d) = %d, want %d", tc.ticks, got, tc.ms)
		}
		if got := MsToTicks(tc.ms); got != tc.ticks {
			t.Errorf("MsToTicks(%d) = %d, want %d", tc.ms, got, tc.ticks)
		}
		if got := TicksToMs(MsToTicks(tc.ms)); got != tc.ms {
			t.Errorf("round trip for %d ms gave %d", tc.ms, got)
		}
	}
}

func TestMsToTicksClampsNegative(t *testing.T) {
	if got := MsToTicks(-5); got != 0 {
		t.Errorf("MsToTicks(-5) = %d, want 0", got)
	}
}

func TestAudioStreamURL(t *testing.T) {
	u := AudioStreamURL(testState(), "abc")

	if !strings.HasPrefix(u, "https://h/Audio/abc/stream?") {
		t.Fatalf("unexpected URL prefix: %s", u)
	}
	for _, want := range []string{"static=true", "deviceId=d1", "enableRedirection=false", "api_key=t1"} {
		if !strings.Contains(u, want) {
			t.Errorf("URL missing %q: %s", want, u)
		}
	}
}

func TestAudioPlaylistURLDefaults(t *testing.T) {
	u := AudioPlaylistURL(testState(), "abc", AdaptiveOptions{})

	if !strings.HasPrefix(u, "https://h/Audio/abc/main.m3u8?") {
		t.Fatalf("unexpected URL prefix: %s", u)
	}
	for _, want := range []string{"deviceId=d1", "audioCodec=mp3", "segmentContainer=mp3", "api_key=t1"} {
		if !strings.Contains(u, want) {
			t.Errorf("URL missing %q: %s", want, u)
		}
	}
	if strings.Contains(u, "startTimeTicks") {
		t.Errorf("URL has startTimeTicks with no start offset: %s", u)
	}
}

func TestAudioPlaylistURLStartOffset(t *testing.T) {
	u := AudioPlaylistURL(testState(), "abc", AdaptiveOptions{StartPositionMs: 1_000})

	if !strings.Contains(u, "startTimeTicks=10000000") {
		t.Errorf("expected startTimeTicks=10000000 in %s", u)
	}
}

func TestAudioPlaylistURLBitrateHints(t *testing.T) {
	u := AudioPlaylistURL(testState(), "abc", AdaptiveOptions{
		MaxStreamingBitrate: 320000,
		AudioBitRate:        320000,
		MaxAudioBitDepth:    16,
	})

	for _, want := range []string{"maxStreamingBitrate=320000", "audioBitRate=320000", "maxAudioBitDepth=16"} {
		if !strings.Contains(u, want) {
			t.Errorf("URL missing %q: %s", want, u)
		}
	}
}

func TestItemImageURL(t *testing.T) {
	u := ItemImageURL(testState(), "abc", "Primary", ImageOptions{
		Tag:        "tag1",
		MaxWidth:   512,
		Quality:    90,
		WithAPIKey: true,
	})

	if !strings.HasPrefix(u, "https://h/Items/abc/Images/Primary?") {
		t.Fatalf("unexpected URL prefix: %s", u)
	}
	for _, want := range []string{"tag=tag1", "maxWidth=512", "quality=90", "ApiKey=t1"} {
		if !strings.Contains(u, want) {
			t.Errorf("URL missing %q: %s", want, u)
		}
	}
}

func TestAudioUniversalURLDefaults(t *testing.T) {
	u := AudioUniversalURL(testState(), "abc", UniversalOptions{})

	if !strings.HasPrefix(u, "https://h/Audio/abc/universal?") {
		t.Fatalf("unexpected URL prefix: %s", u)
	}
	wants := []string{
		"userId=u1",
		"deviceId=d1",
		"container=mp3%2Caac%2Cm4a%2Cflac%2Cogg%2Cwav%2Cwebm%2Cwebma",
		"enableRedirection=false",
		"api_key=t1",
		"transcodingProtocol=http",
	}
	for _, want := range wants {
		if !strings.Contains(u, want) {
			t.Errorf("URL missing %q: %s", want, u)
		}
	}
	if strings.Contains(u, "audioCodec=") {
		t.Errorf("Empty codec must be omitted: %s", u)
	}
}
