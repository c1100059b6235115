package jellyfin

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"muufin/internal/auth"
)

// URL builders for endpoints the playback engine fetches directly. These
// carry auth as query parameters (not headers) because media pipelines and
// image loaders do not forward custom headers.

type ImageOptions struct {
	Tag      string
	MaxWidth int
	Quality  int
	Format   string
	// WithAPIKey appends an ApiKey query parameter for loaders that cannot
	// send the Authorization header.
	WithAPIKey bool
}

// ItemImageURL builds an item artwork URL. imageType is usually "Primary".
func ItemImageURL(s auth.State, itemID, imageType string, o ImageOptions) string {
	var qp []string
	if o.Tag != "" {
		qp = append(qp, "tag="+url.QueryEscape(o.Tag))
	}
	if o.MaxWidth > 0 {
		qp = append(qp, "maxWidth="+strconv.Itoa(o.MaxWidth))
	}
	if o.Quality > 0 {
		qp = append(qp, "quality="+strconv.Itoa(o.Quality))
	}
	if o.Format != "" {
		qp = append(qp, "format="+url.QueryEscape(o.Format))
	}
	if o.WithAPIKey && s.AccessToken != "" {
		qp = append(qp, "ApiKey="+url.QueryEscape(s.AccessToken))
	}

	u := fmt.Sprintf("%s/Items/%s/Images/%s", s.BaseURL(), itemID, imageType)
	if len(qp) > 0 {
		u += "?" + strings.Join(qp, "&")
	}
	return u
}

// UserImageURL builds the profile image URL for a user.
func UserImageURL(s auth.State, userID string, maxWidth int) string {
	u := fmt.Sprintf("%s/Users/%s/Images/Primary", s.BaseURL(), userID)
	if maxWidth > 0 {
		u += "?maxWidth=" + strconv.Itoa(maxWidth)
	}
	return u
}

// AudioStreamURL builds the direct-play byte stream URL: the original file
// bytes, range-capable, no server-side redirects.
func AudioStreamURL(s auth.State, itemID string) string {
	qp := []string{
		"static=true",
		"deviceId=" + url.QueryEscape(s.DeviceID),
		"enableRedirection=false",
		"api_key=" + url.QueryEscape(s.AccessToken),
	}
	return fmt.Sprintf("%s/Audio/%s/stream?%s", s.BaseURL(), itemID, strings.Join(qp, "&"))
}

type AdaptiveOptions struct {
	AudioCodec          string // defaults to mp3
	SegmentContainer    string // defaults to mp3
	MaxStreamingBitrate int
	AudioBitRate        int
	MaxAudioBitDepth    int
	// StartPositionMs is converted to startTimeTicks; zero omits the
	// parameter entirely.
	StartPositionMs        int64
	EnableAudioVbrEncoding *bool
	AllowAudioStreamCopy   *bool
}

// AudioPlaylistURL builds the segmented-playlist (adaptive) URL.
func AudioPlaylistURL(s auth.State, itemID string, o AdaptiveOptions) string {
	codec := o.AudioCodec
	if codec == "" {
		codec = "mp3"
	}
	container := o.SegmentContainer
	if container == "" {
		container = "mp3"
	}

	qp := []string{
		"deviceId=" + url.QueryEscape(s.DeviceID),
		"audioCodec=" + url.QueryEscape(codec),
		"segmentContainer=" + url.QueryEscape(container),
		"api_key=" + url.QueryEscape(s.AccessToken),
	}
	if o.MaxStreamingBitrate > 0 {
		qp = append(qp, "maxStreamingBitrate="+strconv.Itoa(o.MaxStreamingBitrate))
	}
	if o.AudioBitRate > 0 {
		qp = append(qp, "audioBitRate="+strconv.Itoa(o.AudioBitRate))
	}
	if o.MaxAudioBitDepth > 0 {
		qp = append(qp, "maxAudioBitDepth="+strconv.Itoa(o.MaxAudioBitDepth))
	}
	if o.EnableAudioVbrEncoding != nil {
		qp = append(qp, "enableAudioVbrEncoding="+strconv.FormatBool(*o.EnableAudioVbrEncoding))
	}
	if o.AllowAudioStreamCopy != nil {
		qp = append(qp, "allowAudioStreamCopy="+strconv.FormatBool(*o.AllowAudioStreamCopy))
	}
	if o.StartPositionMs > 0 {
		qp = append(qp, "startTimeTicks="+strconv.FormatInt(MsToTicks(o.StartPositionMs), 10))
	}

	return fmt.Sprintf("%s/Audio/%s/main.m3u8?%s", s.BaseURL(), itemID, strings.Join(qp, "&"))
}

const defaultAcceptedContainers = "mp3,aac,m4a,flac,ogg,wav,webm,webma"

type UniversalOptions struct {
	AcceptedContainers     string
	AudioCodec             string
	TranscodingContainer   string
	TranscodingProtocol    string // defaults to http
	EnableAudioVbrEncoding *bool
}

// AudioUniversalURL builds the server-negotiated universal audio endpoint,
// which picks direct or transcoded delivery on the server side.
func AudioUniversalURL(s auth.State, itemID string, o UniversalOptions) string {
	containers := o.AcceptedContainers
	if containers == "" {
		containers = defaultAcceptedContainers
	}
	protocol := o.TranscodingProtocol
	if protocol == "" {
		protocol = "http"
	}

	qp := []string{
		"userId=" + url.QueryEscape(s.UserID),
		"deviceId=" + url.QueryEscape(s.DeviceID),
		"container=" + url.QueryEscape(containers),
		"enableRedirection=false",
		"api_key=" + url.QueryEscape(s.AccessToken),
		"transcodingProtocol=" + url.QueryEscape(protocol),
	}
	if o.AudioCodec != "" {
		qp = append(qp, "audioCodec="+url.QueryEscape(o.AudioCodec))
	}
	if o.TranscodingContainer != "" {
		qp = append(qp, "transcodingContainer="+url.QueryEscape(o.TranscodingContainer))
	}
	if o.EnableAudioVbrEncoding != nil {
		qp = append(qp, "enableAudioVbrEncoding="+strconv.FormatBool(*o.EnableAudioVbrEncoding))
	}

	return fmt.Sprintf("%s/Audio/%s/universal?%s", s.BaseURL(), itemID, strings.Join(qp, "&"))
}
