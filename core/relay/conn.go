package relay

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/dmitrymomot/relayhub/core/frame"
)

// Conn is one peer connection that already speaks in whole messages.
// ReadMessage returns io.EOF when the peer goes away cleanly.
// ReadMessage and WriteMessage may be called concurrently with each other.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(msg []byte) error
	Close() error
	RemoteAddr() net.Addr
}

// StreamConn frames a byte stream connection (TCP, unix socket, net.Pipe).
type StreamConn struct {
	conn         net.Conn
	r            *frame.Reader
	w            *frame.Writer
	writeTimeout time.Duration
}

// StreamOption configures a StreamConn.
type StreamOption func(*streamOptions)

type streamOptions struct {
	frame        []frame.Option
	writeTimeout time.Duration
}

// WithFrameOptions passes codec options (frame size limit, buffer size).
func WithFrameOptions(opts ...frame.Option) StreamOption {
	return func(o *streamOptions) {
		o.frame = append(o.frame, opts...)
	}
}

// WithWriteTimeout bounds every outbound write. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) StreamOption {
	return func(o *streamOptions) {
		if d >= 0 {
			o.writeTimeout = d
		}
	}
}

// NewStreamConn wraps c with the length-prefixed codec.
func NewStreamConn(c net.Conn, opts ...StreamOption) *StreamConn {
	var o streamOptions
	for _, opt := range opts {
		opt(&o)
	}

	return &StreamConn{
		conn:         c,
		r:            frame.NewReader(c, o.frame...),
		w:            frame.NewWriter(c, o.frame...),
		writeTimeout: o.writeTimeout,
	}
}

// ReadMessage reads one frame. A closed or reset connection reads as io.EOF.
func (c *StreamConn) ReadMessage() ([]byte, error) {
	msg, err := c.r.ReadFrame()
	if err == nil {
		return msg, nil
	}
	if errors.Is(err, io.EOF) || isConnGone(err) {
		return nil, io.EOF
	}
	if frame.IsFramingError(err) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w", ErrConnIO, err)
}

// WriteMessage writes one frame, honouring the write timeout.
func (c *StreamConn) WriteMessage(msg []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("%w: %w", ErrConnIO, err)
		}
	}
	if err := c.w.WriteFrame(msg); err != nil {
		if frame.IsFramingError(err) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrConnIO, err)
	}
	return nil
}

func (c *StreamConn) Close() error {
	return c.conn.Close()
}

func (c *StreamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// isConnGone reports errors that mean the peer or we closed the socket.
func isConnGone(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.ECONNRESET)
}
