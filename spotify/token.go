// Package spotify resolves tracks to open.spotify.com links using the web
// player's anonymous token and the public search API. No account credentials
// are involved; the token endpoint hands out short-lived guest tokens.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultTokenURL = "https://open.spotify.com/get_access_token?reason=transport&productType=web-player"

// tokenRetry bounds the backoff when the token endpoint rate limits.
// Attempts sleep 1s, 2s, 4s before giving up.
const (
	tokenRetryAttempts = 3
	tokenRetryBase     = time.Second
)

// TokenSource fetches and caches an anonymous web-player access token.
// Concurrent callers share a single in-flight refresh.
type TokenSource struct {
	URL        string
	HTTPClient *http.Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group

	// retryBase overrides the backoff base in tests.
	retryBase time.Duration
}

func (ts *TokenSource) http() *http.Client {
	if ts.HTTPClient != nil {
		return ts.HTTPClient
	}
	return http.DefaultClient
}

func (ts *TokenSource) url() string {
	if ts.URL != "" {
		return ts.URL
	}
	return defaultTokenURL
}

// Get returns a valid (fresh or cached) anonymous token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.RLock()
	if ts.token != "" && time.Until(ts.expiresAt) > 60*time.Second { // 1 min buffer
		tok := ts.token
		ts.mu.RUnlock()
		return tok, nil
	}
	ts.mu.RUnlock()
	return ts.refresh(ctx)
}

// Invalidate drops the cached token so the next Get refreshes. Called when
// the search API rejects a token the cache still considers valid.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = ""
	ts.mu.Unlock()
}

func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	v, err, _ := ts.group.Do("token", func() (any, error) {
		ts.mu.RLock()
		if ts.token != "" && time.Until(ts.expiresAt) > 60*time.Second {
			tok := ts.token
			ts.mu.RUnlock()
			return tok, nil
		}
		ts.mu.RUnlock()

		tok, exp, err := ts.fetch(ctx)
		if err != nil {
			return "", err
		}
		ts.mu.Lock()
		ts.token = tok
		ts.expiresAt = exp
		ts.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// fetch hits the token endpoint, retrying with exponential backoff while it
// answers 429.
func (ts *TokenSource) fetch(ctx context.Context) (string, time.Time, error) {
	var lastStatus string
	for attempt := 0; attempt < tokenRetryAttempts; attempt++ {
		if attempt > 0 {
			base := ts.retryBase
			if base == 0 {
				base = tokenRetryBase
			}
			delay := base << (attempt - 1)
			slog.Debug("token endpoint rate limited, backing off",
				slog.Duration("delay", delay), slog.Int("attempt", attempt))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", time.Time{}, ctx.Err()
			}
		}

		tok, exp, retry, err := ts.fetchOnce(ctx)
		if err != nil {
			return "", time.Time{}, err
		}
		if !retry {
			return tok, exp, nil
		}
		lastStatus = "429 Too Many Requests"
	}
	return "", time.Time{}, fmt.Errorf("token endpoint kept rate limiting: %s", lastStatus)
}

func (ts *TokenSource) fetchOnce(ctx context.Context) (token string, expiresAt time.Time, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.url(), nil)
	if err != nil {
		return "", time.Time{}, false, err
	}

	resp, err := ts.http().Do(req)
	if err != nil {
		return "", time.Time{}, false, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", time.Time{}, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", time.Time{}, false, fmt.Errorf("token request failed: %s: %s", resp.Status, string(b))
	}

	var at struct {
		AccessToken string `json:"accessToken"`
		ExpiresAtMs int64  `json:"accessTokenExpirationTimestampMs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&at); err != nil {
		return "", time.Time{}, false, err
	}
	if at.AccessToken == "" {
		return "", time.Time{}, false, errors.New("empty accessToken in token response")
	}
	return at.AccessToken, time.UnixMilli(at.ExpiresAtMs), false, nil
}
