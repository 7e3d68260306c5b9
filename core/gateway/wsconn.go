package gateway

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/relayhub/core/frame"
	"github.com/dmitrymomot/relayhub/core/relay"
)

// closeGracePeriod bounds the close handshake write.
const closeGracePeriod = time.Second

// WSConn adapts a WebSocket connection to relay.Conn.
// One WebSocket message carries one relay message; outbound messages are binary.
type WSConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWSConn wraps ws. maxMessageSize limits inbound messages (0 means no limit)
// and writeTimeout bounds each write (0 disables the deadline).
func NewWSConn(ws *websocket.Conn, maxMessageSize int64, writeTimeout time.Duration) *WSConn {
	if maxMessageSize > 0 {
		ws.SetReadLimit(maxMessageSize)
	}
	return &WSConn{ws: ws, writeTimeout: writeTimeout}
}

// ReadMessage returns the next data message. Close frames and dropped
// connections read as io.EOF.
func (c *WSConn) ReadMessage() ([]byte, error) {
	for {
		typ, msg, err := c.ws.ReadMessage()
		if err != nil {
			return nil, mapReadError(err)
		}
		if typ == websocket.BinaryMessage || typ == websocket.TextMessage {
			if msg == nil {
				msg = []byte{}
			}
			return msg, nil
		}
	}
}

// WriteMessage sends msg as one binary message.
func (c *WSConn) WriteMessage(msg []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("%w: %w", relay.ErrConnIO, err)
		}
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		return fmt.Errorf("%w: %w", relay.ErrConnIO, err)
	}
	return nil
}

// Close sends a close frame and closes the underlying connection. Idempotent.
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		// WriteControl is safe to call concurrently with WriteMessage.
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *WSConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func mapReadError(err error) error {
	var ce *websocket.CloseError
	switch {
	case errors.As(err, &ce), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return io.EOF
	case errors.Is(err, websocket.ErrReadLimit):
		return fmt.Errorf("%w: %w", frame.ErrFrameTooLarge, err)
	default:
		return fmt.Errorf("%w: %w", relay.ErrConnIO, err)
	}
}
