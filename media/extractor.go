package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sleuthfm/songsleuth/workspace"
)

// Extractor policy: no live streams, nothing over 30 minutes. Recognition
// only needs the first 60 seconds of audio, so pulling hour-long media would
// be pure waste.
const (
	maxExtractDuration = 1800
	extractTimeout     = 5 * time.Minute
)

// extractorFetch delegates to yt-dlp configured to pick the lowest-bitrate
// audio-capable format and transcode to AAC as part of extraction. On success
// the returned file is already a recognition-ready sample, so the pipeline
// skips the manual transcode stage. The caller owns the file.
func (p *Pipeline) extractorFetch(ctx context.Context, rawURL string) (workspace.File, error) {
	sample := p.WS.Alloc(workspace.TranscodedSample)
	// yt-dlp substitutes the real extension; -x --audio-format aac makes it .aac,
	// which lands exactly on the allocated path.
	outTpl := strings.TrimSuffix(sample.Path, ".aac") + ".%(ext)s"

	args := []string{
		"--no-playlist",
		"--no-warnings", "--no-progress",
		"--match-filter", fmt.Sprintf("!is_live & duration <= %d", maxExtractDuration),
		"-f", "worstaudio/worst",
		"-x", "--audio-format", "aac",
		"-o", outTpl,
		rawURL,
	}

	cctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, p.ytDLP(), args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		sample.Remove()
		if ctx.Err() != nil {
			return workspace.File{}, failf(FailureUpstream, "extractor canceled", ctx.Err())
		}
		kind := classifyExtractorOutput(string(out))
		slog.Warn("extractor failed",
			slog.String("url", rawURL),
			slog.String("kind", kind.String()),
			slog.String("output", tailOf(string(out), 500)))
		return workspace.File{}, failf(kind, "yt-dlp: %s", firstLineOf(string(out)), err)
	}

	// A policy rejection exits zero but produces no file.
	if _, statErr := os.Stat(sample.Path); statErr != nil {
		kind := classifyExtractorOutput(string(out))
		if kind == FailureUpstream {
			kind = FailureUnsupported
		}
		slog.Info("extractor produced no output",
			slog.String("url", rawURL),
			slog.String("output", tailOf(string(out), 500)))
		return workspace.File{}, failf(kind, "extractor rejected %s", rawURL)
	}

	return sample, nil
}

// firstLineOf returns the first non-empty line, for compact error messages.
func firstLineOf(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return "no output"
}

// tailOf bounds log output from a chatty subprocess.
func tailOf(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
