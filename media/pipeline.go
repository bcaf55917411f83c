package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sleuthfm/songsleuth/recognize"
	"github.com/sleuthfm/songsleuth/telemetry"
	"github.com/sleuthfm/songsleuth/workspace"
)

const (
	// sampleSeconds is how much audio is kept for fingerprinting. Longer
	// samples do not improve match rates, they just cost upload time.
	sampleSeconds    = 60
	transcodeTimeout = 2 * time.Minute
)

// Recognizer identifies the track in a transcoded audio sample.
type Recognizer interface {
	Recognize(ctx context.Context, samplePath string) (*recognize.Outcome, error)
}

// Pipeline turns a media reference into a recognition outcome. It owns the
// acquisition strategies, the transcode step, and the workspace files of each
// run. Safe for concurrent use.
type Pipeline struct {
	WS         *workspace.Workspace
	Recognizer Recognizer
	HTTPClient *http.Client

	FFmpegPath      string
	YtDLPPath       string
	SocialLookupURL string
	MediaProxyHost  string
}

func (p *Pipeline) httpClient() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

func (p *Pipeline) ffmpeg() string {
	if p.FFmpegPath != "" {
		return p.FFmpegPath
	}
	return "ffmpeg"
}

func (p *Pipeline) ytDLP() string {
	if p.YtDLPPath != "" {
		return p.YtDLPPath
	}
	return "yt-dlp"
}

// Recognize runs the full pipeline for one reference: acquire the media,
// transcode a sample, and ask the recognition service. Every workspace file
// the run touched is deleted before it returns, on success and on failure.
func (p *Pipeline) Recognize(ctx context.Context, ref Reference) (*recognize.Outcome, error) {
	telemetry.CountStart()
	log := telemetry.LoggerWithCorr(ctx)
	start := time.Now()

	var (
		raw    workspace.File
		sample workspace.File
	)
	defer func() {
		raw.Remove()
		sample.Remove()
	}()

	var err error
	acquireStart := time.Now()
	switch ref.Kind {
	case RawURL:
		// The extractor already emits a short AAC sample, so the
		// transcode step is skipped for this strategy.
		telemetry.CountStrategy("extractor")
		sample, err = p.extractorFetch(ctx, ref.Value)
	case AttachmentURL:
		telemetry.CountStrategy("direct")
		raw, err = p.directFetch(ctx, ref.Value)
	case SocialPostID:
		telemetry.CountStrategy("social")
		raw, err = p.socialFetch(ctx, ref.Value)
	default:
		err = failf(FailureUnsupported, "no acquisition strategy for reference %s", ref.Kind)
	}
	telemetry.Observe(telemetry.AcquireDuration, time.Since(acquireStart))
	if err != nil {
		return nil, p.fail(log, ref, err)
	}
	log.Debug("media acquired",
		slog.String("reference_kind", ref.Kind.String()),
		slog.Int64("acquire_ms", time.Since(acquireStart).Milliseconds()))

	if sample.Path == "" {
		transcodeStart := time.Now()
		sample, err = p.transcode(ctx, raw)
		telemetry.Observe(telemetry.TranscodeDuration, time.Since(transcodeStart))
		if err != nil {
			return nil, p.fail(log, ref, err)
		}
		// The raw download can be large; drop it as soon as the sample
		// exists rather than holding both until the service answers.
		raw.Remove()
		raw = workspace.File{}
	}

	recognizeStart := time.Now()
	out, err := p.Recognizer.Recognize(ctx, sample.Path)
	telemetry.Observe(telemetry.RecognizeDuration, time.Since(recognizeStart))
	if err != nil {
		return nil, p.fail(log, ref, failf(FailureRecognition, "recognition", err))
	}

	telemetry.Observe(telemetry.TotalDuration, time.Since(start))
	telemetry.CountOutcome("", out.Matched())
	if out.Matched() {
		log.Info("track recognized",
			slog.String("title", out.Track.Title),
			slog.String("subtitle", out.Track.Subtitle),
			slog.Int64("total_ms", time.Since(start).Milliseconds()))
	} else {
		log.Info("no track recognized",
			slog.String("reference_kind", ref.Kind.String()),
			slog.Int64("total_ms", time.Since(start).Milliseconds()))
	}
	return out, nil
}

// transcode extracts the opening seconds of audio from the raw download into
// a workspace AAC sample. A non-zero exit status is a failure even if ffmpeg
// left a partial output file behind.
func (p *Pipeline) transcode(ctx context.Context, raw workspace.File) (workspace.File, error) {
	sample := p.WS.Alloc(workspace.TranscodedSample)

	ctx, cancel := context.WithTimeout(ctx, transcodeTimeout)
	defer cancel()

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", raw.Path,
		"-t", fmt.Sprintf("%d", sampleSeconds),
		"-vn",
		"-acodec", "aac",
		sample.Path,
	}
	out, err := exec.CommandContext(ctx, p.ffmpeg(), args...).CombinedOutput()
	if err != nil {
		sample.Remove()
		return workspace.File{}, failf(FailureTranscode, "ffmpeg: %s: %s", err, firstLineOf(string(out)))
	}
	if fi, err := os.Stat(sample.Path); err != nil || fi.Size() == 0 {
		sample.Remove()
		return workspace.File{}, failf(FailureTranscode, "ffmpeg produced no audio output")
	}
	return sample, nil
}

func (p *Pipeline) fail(log *slog.Logger, ref Reference, err error) error {
	label := "unknown"
	if kind, ok := KindOf(err); ok {
		label = kind.String()
	}
	telemetry.CountOutcome(label, false)
	log.Warn("recognition pipeline failed",
		slog.String("reference_kind", ref.Kind.String()),
		slog.String("failure_kind", label),
		slog.String("err", strings.TrimSpace(err.Error())))
	return err
}
