package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/relayhub/core/frame"
	"github.com/dmitrymomot/relayhub/core/logger"
)

// Session bridges one Conn to the distributor. The reader side turns inbound
// messages into Received events; the writer side drains the peer's Mailbox.
// Whichever side stops first records the cause and tears down the other.
type Session struct {
	id      PeerID
	conn    Conn
	mailbox *Mailbox
	dist    *Distributor
	logger  *slog.Logger

	once  sync.Once
	cause error
	done  chan struct{}

	bytesIn  atomic.Int64
	bytesOut atomic.Int64
	msgsIn   atomic.Int64
	msgsOut  atomic.Int64
}

func newSession(id PeerID, conn Conn, mailbox *Mailbox, dist *Distributor, log *slog.Logger) *Session {
	return &Session{
		id:      id,
		conn:    conn,
		mailbox: mailbox,
		dist:    dist,
		logger:  log,
		done:    make(chan struct{}),
	}
}

// ID returns the peer id assigned to this session.
func (s *Session) ID() PeerID { return s.id }

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the cause that ended the session, nil while it runs.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.cause
	default:
		return nil
	}
}

// Close ends the session with ErrSessionClosed. Closing twice is a no-op.
func (s *Session) Close() error {
	s.stop(ErrSessionClosed)
	return nil
}

// run registers the peer and blocks until the session ends. The Joined event
// is submitted before the first read so the peer is in the distributor's list
// ahead of anything it sends.
func (s *Session) run(ctx context.Context) error {
	if err := s.dist.Submit(ctx, Joined{Peer: Peer{ID: s.id, Outbound: s.mailbox}}); err != nil {
		s.stop(err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.stop(s.readLoop(gctx)) })
	g.Go(func() error { return s.stop(s.writeLoop(gctx)) })
	g.Go(func() error {
		// A write blocked on a stalled peer never sees the mailbox close;
		// closing the conn unblocks it.
		select {
		case <-s.mailbox.Done():
			return s.stop(s.mailbox.Err())
		case <-s.done:
			return nil
		}
	})
	_ = g.Wait()

	return s.cause
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		msg, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		s.msgsIn.Add(1)
		s.bytesIn.Add(int64(len(msg)))

		if err := s.dist.Submit(ctx, Received{Source: s.id, Payload: msg}); err != nil {
			return err
		}
	}
}

func (s *Session) writeLoop(ctx context.Context) error {
	var batch [][]byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.mailbox.Done():
			return s.mailbox.Err()
		case <-s.mailbox.Ready():
			batch = s.mailbox.Drain(batch[:0])
			for i, msg := range batch {
				batch[i] = nil
				if err := s.conn.WriteMessage(msg); err != nil {
					return err
				}
				s.msgsOut.Add(1)
				s.bytesOut.Add(int64(len(msg)))
			}
		}
	}
}

// stop records the first cause, closes the transport and the mailbox.
func (s *Session) stop(cause error) error {
	s.once.Do(func() {
		s.cause = cause
		_ = s.conn.Close()
		s.mailbox.Close()
		close(s.done)
	})
	return cause
}

// logEnd reports the session end at a level matching its cause.
func (s *Session) logEnd(ctx context.Context, attrs ...slog.Attr) {
	cause := s.Err()
	attrs = append(attrs,
		logger.PeerID(uint64(s.id)),
		logger.Reason(describeCause(cause)),
		logger.Count("messages_in", int(s.msgsIn.Load())),
		logger.Count("messages_out", int(s.msgsOut.Load())),
		logger.BytesIn(s.bytesIn.Load()),
		logger.BytesOut(s.bytesOut.Load()),
	)

	switch {
	case isGracefulEnd(cause):
		s.logger.LogAttrs(ctx, slog.LevelInfo, "peer disconnected", attrs...)
	case frame.IsFramingError(cause), errors.Is(cause, ErrMailboxOverflow):
		s.logger.LogAttrs(ctx, slog.LevelWarn, "peer dropped", append(attrs, logger.Error(cause))...)
	default:
		s.logger.LogAttrs(ctx, slog.LevelError, "peer dropped", append(attrs, logger.Error(cause))...)
	}
}

func isGracefulEnd(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, ErrMailboxClosed) ||
		errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, ErrDistributorStopped) ||
		errors.Is(err, context.Canceled)
}

func describeCause(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, io.EOF):
		return "remote closed"
	case errors.Is(err, ErrMailboxOverflow):
		return "outbound overflow"
	case errors.Is(err, ErrMailboxClosed):
		return "outbound closed"
	case errors.Is(err, ErrSessionClosed):
		return "closed by hub"
	case errors.Is(err, ErrDistributorStopped):
		return "distributor stopped"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case frame.IsFramingError(err):
		return "framing error"
	default:
		return "i/o error"
	}
}
