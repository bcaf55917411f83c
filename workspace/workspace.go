// Package workspace manages the scratch directory that holds per-request media
// files. The directory is flat (no subdirectories), cleared in full at process
// start, and every file allocated from it is owned by exactly one in-flight
// request, which deletes it on every exit path.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
)

// Kind tags what a workspace file holds.
type Kind int

const (
	// RawDownload is media bytes as fetched from the source.
	RawDownload Kind = iota
	// TranscodedSample is the short audio sample handed to recognition.
	TranscodedSample
)

func (k Kind) String() string {
	switch k {
	case RawDownload:
		return "raw_download"
	case TranscodedSample:
		return "transcoded_sample"
	default:
		return "unknown"
	}
}

// File is a path inside the workspace plus its kind tag.
type File struct {
	Path string
	Kind Kind
}

// Remove deletes the file. A missing file is not an error; removal must be
// safe to call from multiple cleanup paths.
func (f File) Remove() {
	if f.Path == "" {
		return
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("workspace file remove failed", slog.String("path", f.Path), slog.Any("err", err))
	}
}

// Workspace allocates uniquely named files inside a single scratch directory.
type Workspace struct {
	dir string
}

// Init creates the directory if needed and deletes every stale file left by a
// previous run. It must complete before any request is handled.
func Init(dir string) (*Workspace, error) {
	if dir == "" {
		dir = "tmp"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir workspace: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read workspace: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			slog.Warn("stale workspace file remove failed", slog.String("name", e.Name()), slog.Any("err", err))
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("cleared stale workspace files", slog.Int("count", removed), slog.String("dir", dir))
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the scratch directory path.
func (w *Workspace) Dir() string { return w.dir }

// Alloc reserves a unique path for a file of the given kind. Names are drawn
// from the full int63 space so concurrent requests never collide. Transcoded
// samples get an .aac suffix because ffmpeg infers the output container from it.
func (w *Workspace) Alloc(kind Kind) File {
	//nolint:gosec // G404: names only need collision resistance, not secrecy
	name := fmt.Sprintf("%d", rand.Int63())
	if kind == TranscodedSample {
		name += ".aac"
	}
	return File{Path: filepath.Join(w.dir, name), Kind: kind}
}

// Empty reports whether the workspace currently holds no files. Used by tests
// to assert the zero-residual-files invariant.
func (w *Workspace) Empty() (bool, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			return false, nil
		}
	}
	return true, nil
}
