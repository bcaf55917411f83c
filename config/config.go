// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials (e.g., the Discord bot), use ValidateBotReady.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	// Discord
	DiscordToken string

	// HTTP
	HTTPAddr string

	// Workspace
	WorkspaceDir string

	// External tools
	FFmpegPath string
	YtDLPPath  string

	// Recognition service
	RecognizeURL string

	// Social post lookup
	SocialLookupURL string
	// Optional host that direct fetches of social media URLs are proxied
	// through (some CDNs reject non-browser clients outright).
	MediaProxyHost string

	// Companion search
	SpotifyTokenURL  string
	SpotifySearchURL string

	// Pending-media wait window
	PendingWait time.Duration
}

// Load reads environment variables and applies defaults. It doesn't fail if the Discord
// token is missing; use ValidateBotReady() when you require the bot front end. The HTTP
// surface runs regardless.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":6799"
	}

	cfg.WorkspaceDir = os.Getenv("WORKSPACE_DIR")
	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir = "tmp"
	}

	cfg.FFmpegPath = os.Getenv("FFMPEG_PATH")
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	cfg.YtDLPPath = os.Getenv("YTDLP_PATH")
	if cfg.YtDLPPath == "" {
		cfg.YtDLPPath = "yt-dlp"
	}

	cfg.RecognizeURL = os.Getenv("RECOGNIZE_URL")

	cfg.SocialLookupURL = os.Getenv("SOCIAL_LOOKUP_URL")
	if cfg.SocialLookupURL == "" {
		cfg.SocialLookupURL = "https://api.fxtwitter.com/status"
	}
	cfg.MediaProxyHost = strings.TrimSuffix(os.Getenv("MEDIA_PROXY_HOST"), "/")

	cfg.SpotifyTokenURL = os.Getenv("SPOTIFY_TOKEN_URL")
	if cfg.SpotifyTokenURL == "" {
		cfg.SpotifyTokenURL = "https://open.spotify.com/get_access_token?reason=transport&productType=web-player"
	}
	cfg.SpotifySearchURL = os.Getenv("SPOTIFY_SEARCH_URL")
	if cfg.SpotifySearchURL == "" {
		cfg.SpotifySearchURL = "https://api.spotify.com/v1/search"
	}

	cfg.PendingWait = 5 * time.Second
	if v := os.Getenv("PENDING_WAIT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PENDING_WAIT: %w", err)
		}
		cfg.PendingWait = d
	}

	return cfg, nil
}

// ValidateBotReady checks required fields when the Discord front end is enabled.
func (c *Config) ValidateBotReady() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("missing discord env: require DISCORD_TOKEN")
	}
	return nil
}
