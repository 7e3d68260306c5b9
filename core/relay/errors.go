package relay

import "errors"

var (
	// ErrMailboxClosed is returned by Mailbox.Push once the owning session is gone.
	// The distributor treats it as a silent drop.
	ErrMailboxClosed = errors.New("relay: mailbox closed")

	// ErrMailboxFull is returned by Mailbox.Push under DropNewest when the queue is at capacity.
	ErrMailboxFull = errors.New("relay: mailbox full")

	// ErrMailboxOverflow is the close cause of a mailbox shut down by the Disconnect policy.
	ErrMailboxOverflow = errors.New("relay: mailbox overflow, peer disconnected")

	ErrDistributorStopped        = errors.New("relay: distributor stopped")
	ErrDistributorAlreadyStarted = errors.New("relay: distributor already started")

	// ErrSessionClosed is the cause recorded when a session is closed from outside.
	ErrSessionClosed = errors.New("relay: session closed")

	ErrHubClosed = errors.New("relay: hub closed")

	// ErrConnIO wraps read and write failures on an established connection.
	ErrConnIO = errors.New("relay: connection i/o error")

	ErrInvalidOverflowPolicy = errors.New("relay: invalid overflow policy")
)
