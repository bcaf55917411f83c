// Command songsleuth is the main entrypoint for the song recognition service.
// It:
//   - Loads configuration and initializes structured logging.
//   - Clears the media workspace left by a previous run.
//   - Starts the Discord bot (when a token is configured).
//   - Exposes an HTTP server with the recognition endpoints, /healthz,
//     /spotify, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sleuthfm/songsleuth/bot"
	"github.com/sleuthfm/songsleuth/config"
	"github.com/sleuthfm/songsleuth/media"
	"github.com/sleuthfm/songsleuth/pending"
	"github.com/sleuthfm/songsleuth/recognize"
	"github.com/sleuthfm/songsleuth/server"
	"github.com/sleuthfm/songsleuth/spotify"
	"github.com/sleuthfm/songsleuth/telemetry"
	"github.com/sleuthfm/songsleuth/workspace"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("songsleuth", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Workspace must be clean before any request can allocate files in it.
	ws, err := workspace.Init(cfg.WorkspaceDir)
	if err != nil {
		slog.Error("workspace init failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline := &media.Pipeline{
		WS:              ws,
		Recognizer:      &recognize.Client{URL: cfg.RecognizeURL},
		FFmpegPath:      cfg.FFmpegPath,
		YtDLPPath:       cfg.YtDLPPath,
		SocialLookupURL: cfg.SocialLookupURL,
		MediaProxyHost:  cfg.MediaProxyHost,
	}
	searcher := &spotify.Client{
		SearchURL: cfg.SpotifySearchURL,
		Tokens:    &spotify.TokenSource{URL: cfg.SpotifyTokenURL},
	}

	// Discord bot (optional; HTTP-only deployments skip it)
	if err := cfg.ValidateBotReady(); err != nil {
		slog.Info("discord bot disabled", slog.Any("reason", err))
	} else {
		b, err := bot.New(cfg.DiscordToken, pipeline, pending.NewWaitlist(), cfg.PendingWait, slog.Default())
		if err != nil {
			slog.Error("discord bot setup failed", slog.Any("err", err))
			os.Exit(1)
		}
		go func() {
			if err := b.Run(ctx); err != nil {
				slog.Error("discord bot exited with error", slog.Any("err", err))
			}
		}()
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (recognition endpoints, health, metrics)
	go func() {
		if err := server.Start(ctx, server.NewHandlers(pipeline, searcher), cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
