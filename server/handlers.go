// Package server exposes the HTTP API: recognition endpoints mirroring the
// Discord bot's acquisition strategies, a track-link lookup, health, and
// metrics. It includes permissive CORS for development and injects
// correlation IDs into request contexts for consistent logging.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sleuthfm/songsleuth/media"
	"github.com/sleuthfm/songsleuth/recognize"
	"github.com/sleuthfm/songsleuth/spotify"
	"github.com/sleuthfm/songsleuth/telemetry"
)

// Recognizer runs the media pipeline; satisfied by *media.Pipeline.
type Recognizer interface {
	Recognize(ctx context.Context, ref media.Reference) (*recognize.Outcome, error)
}

// TrackSearcher resolves a song/artist pair to a streaming link; satisfied by
// *spotify.Client.
type TrackSearcher interface {
	Search(ctx context.Context, song, artist string) (string, error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	pipeline Recognizer
	searcher TrackSearcher
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(pipeline Recognizer, searcher TrackSearcher) *Handlers {
	return &Handlers{pipeline: pipeline, searcher: searcher}
}

// HandleHealthz responds to liveness probe requests.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleSocialPost recognizes the video attached to a social post:
// GET /twitter/{id}.
func (h *Handlers) HandleSocialPost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/twitter/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "missing post id", http.StatusBadRequest)
		return
	}
	h.recognize(w, r, media.Reference{Kind: media.SocialPostID, Value: id})
}

// HandleExtract recognizes media behind a platform URL via the extractor:
// GET /ytdl?url=...
func (h *Handlers) HandleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	u := r.URL.Query().Get("url")
	if u == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}
	h.recognize(w, r, media.Reference{Kind: media.RawURL, Value: u})
}

// HandleDirect recognizes a directly fetchable media URL: GET /direct?url=...
func (h *Handlers) HandleDirect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	u := r.URL.Query().Get("url")
	if u == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}
	h.recognize(w, r, media.Reference{Kind: media.AttachmentURL, Value: u})
}

// HandleSpotifySearch resolves a song/artist pair to a track link:
// GET /spotify?song=...&artist=... Plain-text response, one URL.
func (h *Handlers) HandleSpotifySearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	song := r.URL.Query().Get("song")
	artist := r.URL.Query().Get("artist")
	if song == "" || artist == "" {
		http.Error(w, "missing song or artist parameter", http.StatusBadRequest)
		return
	}

	link, err := h.searcher.Search(r.Context(), song, artist)
	if err != nil {
		if errors.Is(err, spotify.ErrNoConfidentMatch) {
			http.Error(w, "no confident match", http.StatusNotFound)
			return
		}
		telemetry.LoggerWithCorr(r.Context()).Error("spotify search failed", slog.Any("err", err))
		http.Error(w, "search failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(link))
}

func (h *Handlers) recognize(w http.ResponseWriter, r *http.Request, ref media.Reference) {
	out, err := h.pipeline.Recognize(r.Context(), ref)
	if err != nil {
		status, msg := failureStatus(err)
		telemetry.LoggerWithCorr(r.Context()).Warn("recognition request failed",
			slog.String("reference_kind", ref.Kind.String()),
			slog.Int("status", status),
			slog.Any("err", err))
		http.Error(w, msg, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// failureStatus maps pipeline failure kinds to HTTP statuses. Internal detail
// stays in the logs; the body only names the failure class.
func failureStatus(err error) (int, string) {
	kind, ok := media.KindOf(err)
	if !ok {
		return http.StatusInternalServerError, "internal error"
	}
	switch kind {
	case media.FailureNotFound:
		return http.StatusNotFound, "no media found"
	case media.FailureUnsupported:
		return http.StatusUnprocessableEntity, "unsupported media"
	case media.FailureUpstream, media.FailureTranscode, media.FailureRecognition:
		return http.StatusBadGateway, kind.String()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
