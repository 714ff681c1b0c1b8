package tail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	telemetry "benchlab-telemetry/internal/telemetry/domain"
)

const (
	defaultChunkSize = 64 * 1024
	// DefaultMaxLineSize bounds the bytes buffered for one unterminated line.
	DefaultMaxLineSize = 1 << 20
	// headSize is how much of the file start is remembered to detect rewrites.
	headSize = 64
)

// Reader yields lines appended to a file without blocking. It is not safe
// for concurrent use.
type Reader struct {
	path      string
	file      *os.File
	offset    int64
	pending   []byte
	chunk     []byte
	head      []byte
	maxLine   int
	fromStart bool
	// discarding is set while the rest of an oversized line is skipped.
	discarding bool
	overflowed bool
}

// Option configures a Reader.
type Option func(*Reader)

// FromStart makes the reader begin at offset 0 instead of end-of-file.
func FromStart() Option {
	return func(r *Reader) {
		r.fromStart = true
	}
}

// WithChunkSize sets the read buffer size.
func WithChunkSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.chunk = make([]byte, n)
		}
	}
}

// WithMaxLineSize caps the length of a single line. Longer lines are
// skipped and reported once as telemetry.ErrLineTooLong.
func WithMaxLineSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.maxLine = n
		}
	}
}

// Open opens path for tailing. Lines already present are skipped unless
// FromStart is given.
func Open(path string, opts ...Option) (*Reader, error) {
	if path == "" {
		return nil, errors.New("tail: empty path")
	}
	r := &Reader{path: path, maxLine: DefaultMaxLineSize}
	for _, opt := range opts {
		opt(r)
	}
	if r.chunk == nil {
		r.chunk = make([]byte, defaultChunkSize)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tail: open %s: %w", path, err)
	}
	r.file = f
	if !r.fromStart {
		end, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("tail: seek %s: %w", path, err)
		}
		r.offset = end
		if err := r.loadHead(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return r, nil
}

// Path returns the tailed file path.
func (r *Reader) Path() string {
	return r.path
}

// Poll returns the next complete line without its trailing newline. ok is
// false when no complete line is available yet. Poll reads until it has a
// line or reaches end of file.
//
// The reader follows the path rather than the open handle: a file replaced
// by rename is reopened from the start, and a file that shrank or whose
// first bytes changed is reread from offset 0. A rewrite that keeps the
// first 64 bytes and grows past the read offset is not detected.
func (r *Reader) Poll() (line []byte, ok bool, err error) {
	if line, ok := r.takeLine(); ok {
		return line, true, nil
	}
	if err := r.checkRotated(); err != nil {
		return nil, false, err
	}
	for {
		n, err := r.file.ReadAt(r.chunk, r.offset)
		if n > 0 {
			r.remember(r.chunk[:n])
			r.offset += int64(n)
			r.buffer(r.chunk[:n])
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, false, fmt.Errorf("tail: read %s: %w", r.path, err)
		}
		if r.overflowed {
			r.overflowed = false
			return nil, false, fmt.Errorf("tail: %s: %w", r.path, telemetry.ErrLineTooLong)
		}
		if line, ok := r.takeLine(); ok {
			return line, true, nil
		}
		// A short read means end of file.
		if err != nil || n < len(r.chunk) {
			return nil, false, nil
		}
	}
}

func (r *Reader) takeLine() ([]byte, bool) {
	idx := bytes.IndexByte(r.pending, '\n')
	if idx < 0 {
		return nil, false
	}
	line := make([]byte, idx)
	copy(line, r.pending[:idx])
	r.pending = r.pending[idx+1:]
	if len(r.pending) == 0 {
		r.pending = nil
	}
	return bytes.TrimSuffix(line, []byte("\r")), true
}

// buffer appends data to pending. The unterminated tail of pending never
// exceeds maxLine bytes.
func (r *Reader) buffer(data []byte) {
	if r.discarding {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			return
		}
		r.discarding = false
		data = data[idx+1:]
	}
	r.pending = append(r.pending, data...)
	last := bytes.LastIndexByte(r.pending, '\n')
	if len(r.pending)-(last+1) <= r.maxLine {
		return
	}
	r.pending = r.pending[:last+1]
	if len(r.pending) == 0 {
		r.pending = nil
	}
	r.discarding = true
	r.overflowed = true
}

// remember records the bytes of data that fall inside the file head.
func (r *Reader) remember(data []byte) {
	if r.offset >= headSize || r.offset != int64(len(r.head)) {
		return
	}
	want := headSize - int(r.offset)
	if want > len(data) {
		want = len(data)
	}
	r.head = append(r.head, data[:want]...)
}

func (r *Reader) loadHead() error {
	size := r.offset
	if size > headSize {
		size = headSize
	}
	buf := make([]byte, size)
	n, err := r.file.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("tail: read %s: %w", r.path, err)
	}
	r.head = buf[:n]
	return nil
}

// checkRotated rewinds or reopens when the file behind path is no longer
// the one that was read up to offset.
func (r *Reader) checkRotated() error {
	current, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("tail: stat %s: %w", r.path, err)
	}
	if named, err := os.Stat(r.path); err == nil && !os.SameFile(current, named) {
		return r.reopen()
	}
	if current.Size() < r.offset {
		r.rewind()
		return nil
	}
	if current.Size() == r.offset || len(r.head) == 0 {
		return nil
	}
	buf := make([]byte, len(r.head))
	n, err := r.file.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("tail: read %s: %w", r.path, err)
	}
	if !bytes.Equal(buf[:n], r.head) {
		r.rewind()
	}
	return nil
}

func (r *Reader) reopen() error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("tail: reopen %s: %w", r.path, err)
	}
	_ = r.file.Close()
	r.file = f
	r.rewind()
	return nil
}

func (r *Reader) rewind() {
	r.offset = 0
	r.pending = nil
	r.head = r.head[:0]
	r.discarding = false
	r.overflowed = false
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	return r.file.Close()
}
