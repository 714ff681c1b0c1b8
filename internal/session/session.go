package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// IDLayout is the UTC timestamp layout used for generated session ids.
const IDLayout = "2006-01-02T15-04-05Z"

// Raw input and aligned output file names.
const (
	RawPipeline    = "pipeline.jsonl"
	RawBenchlab    = "benchlab.jsonl"
	RawTelemetry   = "telemetry.jsonl"
	AlignedLatency = "latency.jsonl"
)

// RawFiles lists the raw inputs in engine polling order.
var RawFiles = []string{RawPipeline, RawBenchlab, RawTelemetry}

// Layout locates one session under <root>/sessions/<id>.
type Layout struct {
	ID         string
	Dir        string
	RawDir     string
	AlignedDir string
}

// New builds the layout without touching the filesystem.
func New(dataRoot, id string) (Layout, error) {
	if strings.TrimSpace(dataRoot) == "" {
		return Layout{}, errors.New("session: empty data root")
	}
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return Layout{}, fmt.Errorf("session: invalid id %q", id)
	}
	dir := filepath.Join(SessionsDir(dataRoot), id)
	return Layout{
		ID:         id,
		Dir:        dir,
		RawDir:     filepath.Join(dir, "raw"),
		AlignedDir: filepath.Join(dir, "aligned"),
	}, nil
}

// SessionsDir returns the directory holding every session.
func SessionsDir(dataRoot string) string {
	return filepath.Join(dataRoot, "sessions")
}

// Prepare creates the raw and aligned directories and touches every raw file
// so readers can open them before producers start.
func (l Layout) Prepare() error {
	for _, dir := range []string{l.RawDir, l.AlignedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("session: mkdir %s: %w", dir, err)
		}
	}
	for _, name := range RawFiles {
		path := l.RawPath(name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("session: touch %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

// RawPath returns the path of a raw input file.
func (l Layout) RawPath(name string) string {
	return filepath.Join(l.RawDir, name)
}

// AlignedPath returns the path of an aligned output file.
func (l Layout) AlignedPath(name string) string {
	return filepath.Join(l.AlignedDir, name)
}

// LatencyPath returns the aligned latency stream path.
func (l Layout) LatencyPath() string {
	return l.AlignedPath(AlignedLatency)
}

// NewID formats t as a session id.
func NewID(t time.Time) string {
	return t.UTC().Format(IDLayout)
}

// ParseID extracts the start time encoded in a session id. Ids with a suffix
// after the timestamp ("2025-01-02T03-04-05Z-run2") are accepted.
func ParseID(id string) (time.Time, bool) {
	if len(id) < len(IDLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(IDLayout, id[:len(IDLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// List returns the layouts of every session directory under dataRoot.
func List(dataRoot string) ([]Layout, error) {
	entries, err := os.ReadDir(SessionsDir(dataRoot))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []Layout
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		layout, err := New(dataRoot, entry.Name())
		if err != nil {
			continue
		}
		out = append(out, layout)
	}
	return out, nil
}
