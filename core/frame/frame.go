package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the length of the big-endian payload length prefix.
	HeaderSize = 4

	// DefaultMaxFrameSize caps a single payload at 8 MiB.
	DefaultMaxFrameSize = 8 << 20

	// DefaultBufferSize is the bufio size used by Reader and Writer.
	DefaultBufferSize = 4 << 10
)

type options struct {
	maxFrameSize int
	bufferSize   int
}

// Option configures a Reader or Writer.
type Option func(*options)

// WithMaxFrameSize sets the largest accepted payload. Values <= 0 are ignored.
func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFrameSize = n
		}
	}
}

// WithBufferSize sets the bufio buffer size. Values <= 0 are ignored.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		maxFrameSize: DefaultMaxFrameSize,
		bufferSize:   DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Reader splits a byte stream into length-prefixed frames.
// It is not safe for concurrent use.
type Reader struct {
	r   *bufio.Reader
	max int
	hdr [HeaderSize]byte
}

// NewReader wraps r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	o := newOptions(opts)
	return &Reader{
		r:   bufio.NewReaderSize(r, o.bufferSize),
		max: o.maxFrameSize,
	}
}

// ReadFrame returns the next payload in a newly allocated slice.
//
// It returns io.EOF when the stream ends exactly on a frame boundary,
// ErrTruncatedFrame when it ends inside a header or payload and
// ErrFrameTooLarge when the header announces more than the configured maximum.
// Other transport errors are returned wrapped.
func (r *Reader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(r.r, r.hdr[:]); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, fmt.Errorf("%w: incomplete header", ErrTruncatedFrame)
		default:
			return nil, fmt.Errorf("frame: read header: %w", err)
		}
	}

	n := binary.BigEndian.Uint32(r.hdr[:])
	if uint64(n) > uint64(r.max) {
		return nil, fmt.Errorf("%w: %d bytes announced, limit %d", ErrFrameTooLarge, n, r.max)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: want %d payload bytes", ErrTruncatedFrame, n)
		}
		return nil, fmt.Errorf("frame: read payload: %w", err)
	}

	return payload, nil
}

// Writer encodes frames onto a byte stream. Every WriteFrame call is flushed.
// It is not safe for concurrent use.
type Writer struct {
	w   *bufio.Writer
	max int
	hdr [HeaderSize]byte
}

// NewWriter wraps w.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	o := newOptions(opts)
	return &Writer{
		w:   bufio.NewWriterSize(w, o.bufferSize),
		max: o.maxFrameSize,
	}
}

// WriteFrame writes the length header followed by p.
func (w *Writer) WriteFrame(p []byte) error {
	if len(p) > w.max {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, len(p), w.max)
	}

	binary.BigEndian.PutUint32(w.hdr[:], uint32(len(p)))
	if _, err := w.w.Write(w.hdr[:]); err != nil {
		return fmt.Errorf("frame: write header: %w", err)
	}
	if _, err := w.w.Write(p); err != nil {
		return fmt.Errorf("frame: write payload: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("frame: flush: %w", err)
	}
	return nil
}

// Append encodes p as a frame and appends it to dst.
func Append(dst, p []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(p)))
	return append(dst, p...)
}

// IsFramingError reports whether err is a protocol violation rather than a
// transport failure.
func IsFramingError(err error) bool {
	return errors.Is(err, ErrTruncatedFrame) || errors.Is(err, ErrFrameTooLarge)
}
