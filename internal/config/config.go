// Package config loads the broadcaster's startup configuration from the
// environment, the way the teacher's cmd/prism/main.go does for its own
// listener addresses (spec §6).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is populated once at startup and threaded explicitly through
// constructors — no package-level singleton (Design Notes).
type Config struct {
	// RTMPURL is the full push destination: TG_LINK with any trailing
	// slash trimmed, concatenated with "/" and TG_CODE. It is never
	// logged in full (the stream key lives in the path), only its host.
	RTMPURL string

	Width  int
	Height int

	// AssetDir holds the bundled placeholder image and other static
	// assets; MultimediaDir holds the ingester's downloaded track files.
	AssetDir      string
	MultimediaDir string

	// PlaceholderPath is the still image used to build the placeholder
	// cache (spec §4.3). Falls back to a bundled stand-in under
	// AssetDir when PLACEHOLDER_PATH is unset.
	PlaceholderPath string
}

const (
	defaultWidth  = 1280
	defaultHeight = 720
)

// Load reads the environment and builds a Config. Returns an error if
// TG_LINK or TG_CODE are unset, or WIDTH/HEIGHT don't parse as
// positive integers.
func Load() (*Config, error) {
	link := os.Getenv("TG_LINK")
	code := os.Getenv("TG_CODE")
	if link == "" || code == "" {
		return nil, fmt.Errorf("config: TG_LINK and TG_CODE must both be set")
	}

	width, err := envOrInt("WIDTH", defaultWidth)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	height, err := envOrInt("HEIGHT", defaultHeight)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	assetDir := envOr("ASSET_DIR", "assets")
	multimediaDir := envOr("MULTIMEDIA_DIR", "multimedia")
	placeholderPath := envOr("PLACEHOLDER_PATH", filepath.Join(assetDir, "placeholder.jpg"))

	return &Config{
		RTMPURL:         buildRTMPURL(link, code),
		Width:           width,
		Height:          height,
		AssetDir:        assetDir,
		MultimediaDir:   multimediaDir,
		PlaceholderPath: placeholderPath,
	}, nil
}

// buildRTMPURL trims one trailing slash from base and joins it with code
// — the original's rtmps_url computed property, generalized from RTMPS
// specifically to RTMP/RTMPS (the caller supplies the scheme in base).
func buildRTMPURL(base, code string) string {
	return strings.TrimSuffix(base, "/") + "/" + code
}

// LoggableHost returns the RTMPURL's host and scheme only, safe to log —
// never the full path, which embeds the stream key.
func (c *Config) LoggableHost() string {
	rest, ok := cutScheme(c.RTMPURL)
	if !ok {
		return "***"
	}
	host, _, _ := strings.Cut(rest, "/")
	scheme, _, _ := strings.Cut(c.RTMPURL, "://")
	return scheme + "://" + host
}

func cutScheme(url string) (string, bool) {
	_, rest, found := strings.Cut(url, "://")
	return rest, found
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}
