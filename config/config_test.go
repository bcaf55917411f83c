package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPAddr != ":6799" {
		t.Errorf("HTTPAddr = %q, want :6799", cfg.HTTPAddr)
	}
	if cfg.WorkspaceDir != "tmp" {
		t.Errorf("WorkspaceDir = %q, want tmp", cfg.WorkspaceDir)
	}
	if cfg.FFmpegPath != "ffmpeg" || cfg.YtDLPPath != "yt-dlp" {
		t.Errorf("tool paths = %q/%q, want ffmpeg/yt-dlp", cfg.FFmpegPath, cfg.YtDLPPath)
	}
	if cfg.PendingWait != 5*time.Second {
		t.Errorf("PendingWait = %v, want 5s", cfg.PendingWait)
	}
	if cfg.SocialLookupURL == "" || cfg.SpotifyTokenURL == "" || cfg.SpotifySearchURL == "" {
		t.Error("expected default service URLs to be populated")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("WORKSPACE_DIR", "/var/tmp/songsleuth")
	t.Setenv("PENDING_WAIT", "250ms")
	t.Setenv("MEDIA_PROXY_HOST", "https://media-proxy.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want :9000", cfg.HTTPAddr)
	}
	if cfg.WorkspaceDir != "/var/tmp/songsleuth" {
		t.Errorf("WorkspaceDir = %q", cfg.WorkspaceDir)
	}
	if cfg.PendingWait != 250*time.Millisecond {
		t.Errorf("PendingWait = %v, want 250ms", cfg.PendingWait)
	}
	// Trailing slash trimmed so rewrites can join with "/".
	if cfg.MediaProxyHost != "https://media-proxy.example.com" {
		t.Errorf("MediaProxyHost = %q", cfg.MediaProxyHost)
	}
}

func TestLoadInvalidPendingWait(t *testing.T) {
	t.Setenv("PENDING_WAIT", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Error("Load() with invalid PENDING_WAIT should return error")
	}
}

func TestValidateBotReady(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateBotReady(); err == nil {
		t.Error("ValidateBotReady() with empty token should return error")
	}
	cfg.DiscordToken = "token"
	if err := cfg.ValidateBotReady(); err != nil {
		t.Errorf("ValidateBotReady() error = %v", err)
	}
}
