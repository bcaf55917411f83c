package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sleuthfm/songsleuth/media"
	"github.com/sleuthfm/songsleuth/recognize"
	"github.com/sleuthfm/songsleuth/spotify"
)

type stubPipeline struct {
	outcome *recognize.Outcome
	err     error
	lastRef media.Reference
}

func (s *stubPipeline) Recognize(_ context.Context, ref media.Reference) (*recognize.Outcome, error) {
	s.lastRef = ref
	return s.outcome, s.err
}

type stubSearcher struct {
	link string
	err  error
}

func (s *stubSearcher) Search(_ context.Context, _, _ string) (string, error) {
	return s.link, s.err
}

func newTestServer(t *testing.T, p Recognizer, s TrackSearcher) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := httptest.NewServer(NewMux(ctx, NewHandlers(p, s)))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func matched(title string) *recognize.Outcome {
	return &recognize.Outcome{Track: &recognize.Track{Title: title, Subtitle: "Artist"}}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{}, &stubSearcher{})
	resp, body := get(t, srv.URL+"/healthz")
	if resp.StatusCode != http.StatusOK || body != "ok" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{}, &stubSearcher{})
	resp, _ := get(t, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}

func TestSocialPostEndpoint(t *testing.T) {
	p := &stubPipeline{outcome: matched("Song")}
	srv := newTestServer(t, p, &stubSearcher{})

	resp, body := get(t, srv.URL+"/twitter/123456")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %s", resp.StatusCode, body)
	}
	if p.lastRef.Kind != media.SocialPostID || p.lastRef.Value != "123456" {
		t.Errorf("ref = %+v", p.lastRef)
	}
	var out recognize.Outcome
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !out.Matched() || out.Track.Title != "Song" {
		t.Errorf("outcome = %+v", out)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestExtractEndpoint(t *testing.T) {
	p := &stubPipeline{outcome: matched("Song")}
	srv := newTestServer(t, p, &stubSearcher{})

	resp, _ := get(t, srv.URL+"/ytdl?url=https%3A%2F%2Fvimeo.com%2F1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if p.lastRef.Kind != media.RawURL || p.lastRef.Value != "https://vimeo.com/1" {
		t.Errorf("ref = %+v", p.lastRef)
	}
}

func TestExtractMissingURL(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{}, &stubSearcher{})
	resp, _ := get(t, srv.URL+"/ytdl")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDirectEndpoint(t *testing.T) {
	p := &stubPipeline{outcome: matched("Song")}
	srv := newTestServer(t, p, &stubSearcher{})

	resp, _ := get(t, srv.URL+"/direct?url=https%3A%2F%2Fcdn.example.com%2Fv.mp4")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if p.lastRef.Kind != media.AttachmentURL {
		t.Errorf("ref kind = %v", p.lastRef.Kind)
	}
}

func TestFailureStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", media.NewError(media.FailureNotFound, "no media"), http.StatusNotFound},
		{"unsupported", media.NewError(media.FailureUnsupported, "live stream"), http.StatusUnprocessableEntity},
		{"upstream", media.NewError(media.FailureUpstream, "cdn 403"), http.StatusBadGateway},
		{"transcode", media.NewError(media.FailureTranscode, "ffmpeg exit 1"), http.StatusBadGateway},
		{"recognition", media.NewError(media.FailureRecognition, "service down"), http.StatusBadGateway},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, &stubPipeline{err: tc.err}, &stubSearcher{})
			resp, _ := get(t, srv.URL+"/twitter/1")
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestSpotifySearchEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{}, &stubSearcher{link: "https://open.spotify.com/track/abc"})

	resp, body := get(t, srv.URL+"/spotify?song=Song&artist=Artist")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body != "https://open.spotify.com/track/abc" {
		t.Errorf("body = %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
}

func TestSpotifySearchNoMatch(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{}, &stubSearcher{err: spotify.ErrNoConfidentMatch})
	resp, _ := get(t, srv.URL+"/spotify?song=Song&artist=Artist")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSpotifySearchMissingParams(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{}, &stubSearcher{})
	resp, _ := get(t, srv.URL+"/spotify?song=Song")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCorrelationIDHeader(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{}, &stubSearcher{})

	resp, _ := get(t, srv.URL+"/healthz")
	if resp.Header.Get("X-Correlation-ID") == "" {
		t.Error("no correlation id generated")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp2.Body.Close()
	if got := resp2.Header.Get("X-Correlation-ID"); got != "corr-123" {
		t.Errorf("correlation id = %q, want corr-123", got)
	}
}

func TestRecognitionRateLimited(t *testing.T) {
	t.Setenv("RATE_LIMIT_REQUESTS_PER_IP", "2")
	srv := newTestServer(t, &stubPipeline{outcome: matched("Song")}, &stubSearcher{})

	var last int
	for i := 0; i < 3; i++ {
		resp, _ := get(t, srv.URL+"/twitter/1")
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}

	// Health endpoint is never rate limited.
	resp, _ := get(t, srv.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d under rate limiting", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{}, &stubSearcher{})

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/ytdl", nil)
	req.Header.Set("Origin", "https://example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("no CORS headers on preflight")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{}, &stubSearcher{})
	resp, err := http.Post(srv.URL+"/ytdl?url=x", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}
