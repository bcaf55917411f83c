package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sleuthfm/songsleuth/workspace"
)

// postLookupResponse is the shape of the read-only post-lookup endpoint
// (fxtwitter compatible). Optionality is expressed once, here, with pointer
// fields validated after decoding rather than re-checked ad hoc downstream.
type postLookupResponse struct {
	Tweet *struct {
		Media *struct {
			Videos []struct {
				URL string `json:"url"`
			} `json:"videos"`
		} `json:"media"`
	} `json:"tweet"`
}

// resolveSocialPost looks up a post by ID and returns the first attached
// video's playable URL, optionally rewritten through the media proxy. A post
// without video is "no media", not an upstream failure.
func (p *Pipeline) resolveSocialPost(ctx context.Context, postID string) (string, error) {
	lookupURL := fmt.Sprintf("%s/%s", p.SocialLookupURL, postID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return "", failf(FailureUpstream, "build post lookup request", err)
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return "", failf(FailureUpstream, "post lookup %s", postID, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusNotFound {
		return "", failf(FailureNotFound, "post %s not found", postID)
	}
	if resp.StatusCode != http.StatusOK {
		return "", failf(FailureUpstream, "post lookup %s: %s", postID, resp.Status)
	}

	var body postLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", failf(FailureUpstream, "decode post lookup response", err)
	}
	if body.Tweet == nil || body.Tweet.Media == nil || len(body.Tweet.Media.Videos) == 0 {
		return "", failf(FailureNotFound, "post %s has no video", postID)
	}
	videoURL := body.Tweet.Media.Videos[0].URL
	if videoURL == "" {
		return "", failf(FailureNotFound, "post %s has no playable video url", postID)
	}

	if p.MediaProxyHost != "" {
		videoURL = p.MediaProxyHost + "/" + videoURL
	}
	slog.Debug("resolved social post", slog.String("post_id", postID), slog.String("video_url", videoURL))
	return videoURL, nil
}

// socialFetch resolves a post ID to its video URL and recurses into the
// direct fetch strategy.
func (p *Pipeline) socialFetch(ctx context.Context, postID string) (workspace.File, error) {
	videoURL, err := p.resolveSocialPost(ctx, postID)
	if err != nil {
		return workspace.File{}, err
	}
	return p.directFetch(ctx, videoURL)
}
