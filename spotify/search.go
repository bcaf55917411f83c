package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const defaultSearchURL = "https://api.spotify.com/v1/search"

// ErrNoConfidentMatch means the search returned results but none of them
// matched the requested artist and title closely enough to link.
var ErrNoConfidentMatch = errors.New("no confident track match")

type searchResponse struct {
	Tracks struct {
		Items []searchTrack `json:"items"`
	} `json:"tracks"`
}

type searchTrack struct {
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

// Client searches the public catalog for a track and returns its web URL.
type Client struct {
	SearchURL  string
	Tokens     *TokenSource
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) searchURL() string {
	if c.SearchURL != "" {
		return c.SearchURL
	}
	return defaultSearchURL
}

// Search looks up song by artist and returns the open.spotify.com track URL
// of the first confident match. A 401 or 429 from the API invalidates the
// cached token and retries once with a fresh one.
func (c *Client) Search(ctx context.Context, song, artist string) (string, error) {
	link, retryable, err := c.searchOnce(ctx, song, artist)
	if retryable {
		c.Tokens.Invalidate()
		link, _, err = c.searchOnce(ctx, song, artist)
	}
	if err != nil {
		return "", err
	}
	return link, nil
}

func (c *Client) searchOnce(ctx context.Context, song, artist string) (link string, retryable bool, err error) {
	token, err := c.Tokens.Get(ctx)
	if err != nil {
		return "", false, fmt.Errorf("spotify token: %w", err)
	}

	q := url.Values{}
	q.Set("q", strings.TrimSpace(song+" "+artist))
	q.Set("type", "track")
	q.Set("limit", "10")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL()+"?"+q.Encode(), nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http().Do(req)
	if err != nil {
		return "", false, fmt.Errorf("spotify search: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusTooManyRequests {
		return "", true, fmt.Errorf("spotify search rejected: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("spotify search: %s: %s", resp.Status, string(b))
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false, fmt.Errorf("decode spotify search response: %w", err)
	}

	// Only the top result counts; a match buried further down the list is
	// not confident enough to link.
	if len(body.Tracks.Items) == 0 {
		return "", false, ErrNoConfidentMatch
	}
	item := body.Tracks.Items[0]
	if !titlesMatch(item.Name, song) || item.ExternalURLs.Spotify == "" {
		return "", false, ErrNoConfidentMatch
	}
	for _, a := range item.Artists {
		if titlesMatch(a.Name, artist) {
			return item.ExternalURLs.Spotify, false, nil
		}
	}
	return "", false, ErrNoConfidentMatch
}

// titlesMatch is deliberately loose: catalog titles carry remaster suffixes
// and featured-artist decorations, so either side containing the other
// (case-insensitive) counts as a match.
func titlesMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
