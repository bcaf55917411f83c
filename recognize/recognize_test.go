package recognize

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

const matchedBody = `{
  "track": {
    "title": "Bohemian Rhapsody",
    "subtitle": "Queen",
    "url": "https://www.shazam.com/track/217124",
    "images": {"coverarthq": "https://images.example.com/hq.jpg"},
    "sections": [
      {"metadata": [
        {"title": "Album", "text": "A Night At The Opera"},
        {"title": "Released", "text": "1975"}
      ]}
    ],
    "hub": {
      "providers": [
        {"type": "SPOTIFY", "actions": [{"uri": "spotify:search:Bohemian Rhapsody Queen"}]},
        {"type": "APPLEMUSIC", "actions": [{"uri": "https://music.apple.com/song/1"}]}
      ]
    }
  }
}`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.aac")
	if err := os.WriteFile(path, []byte("aac-bytes"), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func TestRecognizeMatch(t *testing.T) {
	var gotFilename string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, "bad upload", http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotFilename = hdr.Filename
		fmt.Fprint(w, matchedBody)
	}))
	defer srv.Close()

	c := &Client{URL: srv.URL}
	out, err := c.Recognize(context.Background(), writeSample(t))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if !out.Matched() {
		t.Fatal("outcome not matched")
	}
	if gotFilename != "sample.aac" {
		t.Errorf("uploaded filename = %q, want sample.aac", gotFilename)
	}
	if out.Track.Subtitle != "Queen" {
		t.Errorf("subtitle = %q, want Queen", out.Track.Subtitle)
	}
	if got := out.Track.CoverArtURL(); got != "https://images.example.com/hq.jpg" {
		t.Errorf("cover art = %q", got)
	}
	md := out.Track.Metadata()
	if len(md) != 2 || md[0].Title != "Album" || md[1].Text != "1975" {
		t.Errorf("metadata = %+v", md)
	}
}

func TestRecognizeNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := &Client{URL: srv.URL}
	out, err := c.Recognize(context.Background(), writeSample(t))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if out.Matched() {
		t.Error("empty response reported as matched")
	}
}

func TestRecognizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "fingerprinter crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := &Client{URL: srv.URL}
	if _, err := c.Recognize(context.Background(), writeSample(t)); err == nil {
		t.Fatal("Recognize succeeded on 500, want error")
	}
}

func TestProviderURI(t *testing.T) {
	track := &Track{Hub: &hub{Providers: []provider{
		{Type: "SPOTIFY", Actions: []providerAction{{URI: "spotify:search:Song Artist"}}},
		{Type: "APPLEMUSIC", Actions: []providerAction{{URI: "https://music.apple.com/song/1"}}},
	}}}

	if got, want := track.ProviderURI("SPOTIFY"), "https://open.spotify.com/search/Song Artist"; got != want {
		t.Errorf("spotify uri = %q, want %q", got, want)
	}
	if got, want := track.ProviderURI("applemusic"), "https://music.apple.com/song/1"; got != want {
		t.Errorf("apple music uri = %q, want %q", got, want)
	}
	if got := track.ProviderURI("DEEZER"); got != "" {
		t.Errorf("unknown provider uri = %q, want empty", got)
	}

	var none Track
	if got := none.ProviderURI("SPOTIFY"); got != "" {
		t.Errorf("no-hub uri = %q, want empty", got)
	}
}
