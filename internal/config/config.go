package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	SQLitePath string
	ListenAddr string

	// Client identity reported to the media server
	ClientName string
	DeviceName string
	AppVersion string

	// Playback reporting
	ProgressIntervalSec int // interval between periodic progress reports, e.g. 15

	// Adaptive stream defaults
	AudioCodec       string // e.g. mp3
	SegmentContainer string // e.g. mp3
	MaxAudioBitRate  int    // 0 = unset

	// Images
	ImgQuality         int // e.g. 90
	ImgPrimaryMaxWidth int // e.g. 512

	// Remote control websocket to the media server
	RemoteControlEnabled bool

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text, dev
}

func Load() Config {
	dbPath := env("MUUFIN_SQLITE_PATH", "/var/lib/muufin/muufin.db")
	_ = os.MkdirAll(filepath.Dir(dbPath), 0755)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "muufin-host"
	}

	cfg := Config{
		SQLitePath:           dbPath,
		ListenAddr:           env("MUUFIN_LISTEN", ":8099"),
		ClientName:           env("MUUFIN_CLIENT_NAME", "Muufin"),
		DeviceName:           env("MUUFIN_DEVICE_NAME", hostname),
		AppVersion:           env("MUUFIN_APP_VERSION", "0.1.0"),
		ProgressIntervalSec:  envInt("MUUFIN_PROGRESS_INTERVAL", 15),
		AudioCodec:           env("MUUFIN_AUDIO_CODEC", "mp3"),
		SegmentContainer:     env("MUUFIN_SEGMENT_CONTAINER", "mp3"),
		MaxAudioBitRate:      envInt("MUUFIN_MAX_AUDIO_BITRATE", 0),
		ImgQuality:           envInt("MUUFIN_IMG_QUALITY", 90),
		ImgPrimaryMaxWidth:   envInt("MUUFIN_IMG_PRIMARY_MAX_WIDTH", 512),
		RemoteControlEnabled: envBool("MUUFIN_REMOTE_CONTROL", true),
		LogLevel:             env("MUUFIN_LOG_LEVEL", "info"),
		LogFormat:            env("MUUFIN_LOG_FORMAT", "text"),
	}

	fmt.Printf("[INFO] Using SQLite DB at: %s\n", dbPath)
	return cfg
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}
