package relayclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/relayhub/core/frame"
	"github.com/dmitrymomot/relayhub/core/gateway"
	"github.com/dmitrymomot/relayhub/core/relay"
)

// Client is one peer of a relay hub. Send and Receive may be used from
// different goroutines; concurrent Sends are serialized.
type Client struct {
	conn   relay.Conn
	wmu    sync.Mutex
	closed atomic.Bool
}

// Option configures a Client.
type Option func(*options)

type options struct {
	dialTimeout  time.Duration
	writeTimeout time.Duration
	maxFrameSize int
	header       map[string][]string
}

// WithDialTimeout bounds connection setup. The context deadline still applies.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithWriteTimeout bounds each Send. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.writeTimeout = d
		}
	}
}

// WithMaxFrameSize limits inbound and outbound message size.
func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFrameSize = n
		}
	}
}

// WithHeader adds HTTP headers to the WebSocket handshake, Origin for example.
func WithHeader(key, value string) Option {
	return func(o *options) {
		if o.header == nil {
			o.header = make(map[string][]string)
		}
		o.header[key] = append(o.header[key], value)
	}
}

func newOptions(opts []Option) options {
	o := options{
		dialTimeout:  10 * time.Second,
		maxFrameSize: frame.DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Dial connects to a hub's TCP listener.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	o := newOptions(opts)

	d := net.Dialer{Timeout: o.dialTimeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDial, addr, err)
	}

	conn := relay.NewStreamConn(c,
		relay.WithFrameOptions(frame.WithMaxFrameSize(o.maxFrameSize)),
		relay.WithWriteTimeout(o.writeTimeout))
	return &Client{conn: conn}, nil
}

// DialWebSocket connects to a hub gateway, url being ws://host:port/ws.
func DialWebSocket(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := newOptions(opts)

	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: o.dialTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, url, o.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDial, url, err)
	}

	return &Client{conn: gateway.NewWSConn(ws, int64(o.maxFrameSize), o.writeTimeout)}, nil
}

// Send relays msg to every other peer of the hub.
func (c *Client) Send(msg []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(msg)
}

// Receive blocks until the next message from another peer arrives.
// Returns io.EOF once the hub closes the connection and ErrClosed after Close.
func (c *Client) Receive() ([]byte, error) {
	msg, err := c.conn.ReadMessage()
	if err != nil && c.closed.Load() {
		return nil, ErrClosed
	}
	return msg, err
}

// Messages streams received messages until the connection ends.
// Cancelling ctx closes the client. The channel is closed when receiving
// stops; the returned func then reports why (nil for a normal end).
func (c *Client) Messages(ctx context.Context) (<-chan []byte, func() error) {
	out := make(chan []byte)
	done := make(chan struct{})
	var reason error

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(done)
		defer close(out)
		for {
			msg, err := c.Receive()
			if err != nil {
				switch {
				case ctx.Err() != nil:
					reason = ctx.Err()
				case !errors.Is(err, io.EOF) && !errors.Is(err, ErrClosed):
					reason = err
				}
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				reason = ctx.Err()
				return
			}
		}
	}()

	return out, func() error {
		<-done
		return reason
	}
}

// Close ends the connection. Idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

// RemoteAddr returns the hub's address.
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
