package relay

import (
	"fmt"
	"strings"
	"sync"
)

// OverflowPolicy decides what a bounded Mailbox does when a push finds it full.
type OverflowPolicy int

const (
	// DropNewest rejects the incoming message.
	DropNewest OverflowPolicy = iota
	// DropOldest evicts the head of the queue to make room.
	DropOldest
	// Disconnect closes the mailbox, which ends the owning session.
	Disconnect
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop_newest"
	case DropOldest:
		return "drop_oldest"
	case Disconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

// ParseOverflowPolicy accepts drop_newest, drop_oldest and disconnect.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "", "drop_newest":
		return DropNewest, nil
	case "drop_oldest":
		return DropOldest, nil
	case "disconnect":
		return Disconnect, nil
	}
	return DropNewest, fmt.Errorf("%w: %q", ErrInvalidOverflowPolicy, s)
}

// Mailbox is a peer's outbound queue. The distributor pushes, one session drains.
// A capacity of 0 means unbounded.
type Mailbox struct {
	mu       sync.Mutex
	queue    [][]byte
	capacity int
	policy   OverflowPolicy
	closed   bool
	cause    error

	ready chan struct{}
	done  chan struct{}
}

// NewMailbox creates an open mailbox.
func NewMailbox(capacity int, policy OverflowPolicy) *Mailbox {
	if capacity < 0 {
		capacity = 0
	}
	return &Mailbox{
		capacity: capacity,
		policy:   policy,
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push enqueues msg without blocking.
//
// It returns ErrMailboxClosed when the mailbox is closed, ErrMailboxFull when
// the message was rejected under DropNewest and ErrMailboxOverflow when the
// push tripped the Disconnect policy. Under DropOldest the push always
// succeeds and the evicted message is reported through the returned count.
func (m *Mailbox) Push(msg []byte) (evicted int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrMailboxClosed
	}

	if m.capacity > 0 && len(m.queue) >= m.capacity {
		switch m.policy {
		case DropOldest:
			m.queue[0] = nil
			m.queue = m.queue[1:]
			evicted = 1
		case Disconnect:
			m.closeLocked(ErrMailboxOverflow)
			return 0, ErrMailboxOverflow
		default:
			return 0, ErrMailboxFull
		}
	}

	m.queue = append(m.queue, msg)

	select {
	case m.ready <- struct{}{}:
	default:
	}

	return evicted, nil
}

// Ready fires after a push when the mailbox may hold messages.
func (m *Mailbox) Ready() <-chan struct{} {
	return m.ready
}

// Done is closed when the mailbox is closed.
func (m *Mailbox) Done() <-chan struct{} {
	return m.done
}

// Drain appends every queued message to buf and empties the queue.
func (m *Mailbox) Drain(buf [][]byte) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf = append(buf, m.queue...)
	clear(m.queue)
	m.queue = m.queue[:0]
	return buf
}

// Len reports the number of queued messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close discards queued messages and rejects further pushes. Idempotent.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked(ErrMailboxClosed)
}

// Err returns the close cause, or nil while the mailbox is open.
func (m *Mailbox) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cause
}

func (m *Mailbox) closeLocked(cause error) {
	if m.closed {
		return
	}
	m.closed = true
	m.cause = cause
	clear(m.queue)
	m.queue = nil
	close(m.done)
}
