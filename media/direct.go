package media

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/sleuthfm/songsleuth/workspace"
)

// browserHeaders is a realistic Chrome header set. Several media CDNs answer
// 403 to anything that does not look like a browser.
var browserHeaders = map[string]string{
	"User-Agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/104.0.0.0 Safari/537.36",
	"sec-ch-ua":          `".Not/A)Brand";v="99", "Google Chrome";v="104", "Chromium";v="104"`,
	"sec-ch-ua-mobile":   "?0",
	"sec-ch-ua-platform": `"Windows"`,
	"DNT":                "1",
	"Accept":             "*/*",
	"Sec-Fetch-Site":     "none",
	"Sec-Fetch-Mode":     "no-cors",
	"Accept-Language":    "en",
	"Cache-Control":      "no-cache",
	"Pragma":             "no-cache",
}

const downloadChunkSize = 32 * 1024

// directFetch streams the URL into a RawDownload workspace file. The caller
// owns the returned file and must remove it on every path; on failure the
// partial write is removed here before the error is returned.
func (p *Pipeline) directFetch(ctx context.Context, rawURL string) (workspace.File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return workspace.File{}, failf(FailureUpstream, "build request for %s", rawURL, err)
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return workspace.File{}, failf(FailureUpstream, "fetch %s", rawURL, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return workspace.File{}, failf(FailureUpstream, "fetch %s: %s", rawURL, resp.Status)
	}

	raw := p.WS.Alloc(workspace.RawDownload)
	out, err := os.Create(raw.Path)
	if err != nil {
		return workspace.File{}, failf(FailureUpstream, "create download file", err)
	}

	buf := make([]byte, downloadChunkSize)
	written, copyErr := io.CopyBuffer(out, resp.Body, buf)
	if closeErr := out.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		raw.Remove()
		return workspace.File{}, failf(FailureUpstream, "stream %s", rawURL, copyErr)
	}

	slog.Debug("direct fetch complete",
		slog.String("url", rawURL),
		slog.Int64("bytes", written),
		slog.Int64("content_length", resp.ContentLength))
	return raw, nil
}
