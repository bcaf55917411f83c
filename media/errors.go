package media

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies pipeline failures for reporting. Front ends map
// NotFound to a neutral "nothing found" message and everything else to a
// generic retryable error; detail stays in server logs.
type FailureKind int

const (
	// FailureNotFound means no media was resolvable from the trigger.
	FailureNotFound FailureKind = iota
	// FailureUnsupported means extractor policy rejected the media
	// (live stream or over the duration cap).
	FailureUnsupported
	// FailureUpstream means a fetch or lookup answered with a non-2xx
	// status or a transport error.
	FailureUpstream
	// FailureTranscode means the external transcoder exited nonzero.
	FailureTranscode
	// FailureRecognition means the recognition service call itself failed.
	FailureRecognition
)

// String returns a human-readable name for the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureNotFound:
		return "not_found"
	case FailureUnsupported:
		return "unsupported"
	case FailureUpstream:
		return "upstream_error"
	case FailureTranscode:
		return "transcode_failure"
	case FailureRecognition:
		return "recognition_failure"
	default:
		return "unknown"
	}
}

// Error is a pipeline failure carrying its taxonomy kind and cause.
type Error struct {
	Kind FailureKind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// NewError builds a pipeline failure with a fixed message. Front-end tests
// and handlers use it; pipeline internals prefer failf.
func NewError(kind FailureKind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// failf builds an *Error with a formatted message. A trailing error argument
// becomes the wrapped cause instead of a format operand.
func failf(kind FailureKind, format string, args ...any) *Error {
	var cause error
	if n := len(args); n > 0 {
		if err, ok := args[n-1].(error); ok {
			cause = err
			args = args[:n-1]
		}
	}
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), err: cause}
}

// KindOf extracts the failure kind from err, if it is (or wraps) a pipeline
// failure.
func KindOf(err error) (FailureKind, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind, true
	}
	return 0, false
}

// classifyExtractorOutput maps yt-dlp output to a failure kind. Policy
// rejections (live streams, over-duration videos filtered by --match-filter)
// are unsupported; everything else is an upstream problem.
func classifyExtractorOutput(out string) FailureKind {
	lower := strings.ToLower(out)
	if strings.Contains(lower, "does not pass filter") ||
		strings.Contains(lower, "is_live") ||
		strings.Contains(lower, "live event") ||
		strings.Contains(lower, "premieres in") {
		return FailureUnsupported
	}
	if strings.Contains(lower, "unsupported url") ||
		strings.Contains(lower, "no video formats found") ||
		strings.Contains(lower, "unable to extract") {
		return FailureUnsupported
	}
	return FailureUpstream
}
