// Package recognize contains the client for the audio-fingerprint recognition
// service. The service is opaque: it receives a short audio sample and answers
// with a track match or nothing. The response is validated into a typed schema
// once, at the decoding boundary.
package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MetadataPair is one labeled fact about a track (album, released year, ...).
type MetadataPair struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Section groups track metadata; only the metadata of the first section is
// rendered by the front ends.
type Section struct {
	Metadata []MetadataPair `json:"metadata"`
}

// Images carries cover art URLs; CoverArtHQ is the one worth showing.
type Images struct {
	Background string `json:"background"`
	CoverArt   string `json:"coverart"`
	CoverArtHQ string `json:"coverarthq"`
}

type providerAction struct {
	URI string `json:"uri"`
}

type provider struct {
	Type    string           `json:"type"`
	Actions []providerAction `json:"actions"`
}

type hub struct {
	Providers []provider `json:"providers"`
}

// Track is a recognized song.
type Track struct {
	Title    string    `json:"title"`
	Subtitle string    `json:"subtitle"`
	URL      string    `json:"url"`
	Images   *Images   `json:"images"`
	Sections []Section `json:"sections"`
	Hub      *hub      `json:"hub"`
}

// Metadata returns the first section's metadata pairs, or nil.
func (t *Track) Metadata() []MetadataPair {
	if len(t.Sections) == 0 {
		return nil
	}
	return t.Sections[0].Metadata
}

// ProviderURI returns the external link for a provider type ("SPOTIFY",
// "APPLEMUSIC"), with the spotify:search: scheme rewritten to a web URL.
func (t *Track) ProviderURI(typ string) string {
	if t.Hub == nil {
		return ""
	}
	for _, p := range t.Hub.Providers {
		if !strings.EqualFold(p.Type, typ) {
			continue
		}
		for _, a := range p.Actions {
			if a.URI == "" {
				continue
			}
			return strings.Replace(a.URI, "spotify:search:", "https://open.spotify.com/search/", 1)
		}
	}
	return ""
}

// CoverArtURL returns the high-quality cover art URL, or "".
func (t *Track) CoverArtURL() string {
	if t.Images == nil {
		return ""
	}
	return t.Images.CoverArtHQ
}

// Outcome is the recognition result: a track or nothing. There is no partial
// state; an answered request without a track is a definitive "no match".
type Outcome struct {
	Track *Track `json:"track"`
}

// Matched reports whether the service identified a track.
func (o *Outcome) Matched() bool { return o != nil && o.Track != nil && o.Track.Title != "" }

// Client talks to the recognition service over HTTP.
type Client struct {
	URL        string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

// Recognize uploads the sample at path and decodes the service's answer.
// A non-2xx status or transport error is an error; an empty track is not.
func (c *Client) Recognize(ctx context.Context, path string) (*Outcome, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("recognition service URL not configured")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sample: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close sample file", slog.Any("err", err))
		}
	}()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("recognition request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("recognition service: %s: %s", resp.Status, string(b))
	}

	var out Outcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode recognition response: %w", err)
	}
	return &out, nil
}
