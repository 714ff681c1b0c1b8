package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	telemetry "benchlab-telemetry/internal/telemetry/domain"
)

// Stream appends JSON lines and flushes after every line. The aligned
// latency output and the simulated raw inputs both go through it.
type Stream struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
}

// OpenStream opens path for append, creating parent directories.
func OpenStream(path string) (*Stream, error) {
	if path == "" {
		return nil, errors.New("jsonl: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("jsonl: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonl: open %s: %w", path, err)
	}
	return &Stream{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the output file path.
func (s *Stream) Path() string {
	return s.path
}

// Append writes one sample line and flushes it to the file.
func (s *Stream) Append(ctx context.Context, sample telemetry.LatencySample) error {
	return s.appendValue(ctx, sample)
}

// AppendRecord writes one raw input record in the ingest envelope format.
func (s *Stream) AppendRecord(ctx context.Context, rec telemetry.Record) error {
	return s.appendValue(ctx, rec)
}

func (s *Stream) appendValue(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("jsonl: encode: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("jsonl: stream closed")
	}
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("jsonl: write: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("jsonl: flush: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	s.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// ReadSamples loads every latency line from path, skipping malformed ones.
func ReadSamples(path string) ([]telemetry.LatencySample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []telemetry.LatencySample
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var sample telemetry.LatencySample
		if err := json.Unmarshal(line, &sample); err != nil {
			continue
		}
		out = append(out, sample)
	}
	if err := scanner.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// FileQuery serves persisted samples from an aligned latency file.
type FileQuery struct {
	Path string
}

// ListSamples returns the samples of pair in file order. The zero pair
// returns every sample.
func (q FileQuery) ListSamples(ctx context.Context, pair [2]string) ([]telemetry.LatencySample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := ReadSamples(q.Path)
	if err != nil || pair == [2]string{} {
		return all, err
	}
	out := all[:0]
	for _, s := range all {
		if s.StagePair == pair {
			out = append(out, s)
		}
	}
	return out, nil
}
