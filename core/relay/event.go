package relay

// PeerID identifies one connection for the lifetime of the process.
// IDs are handed out by the Hub in strictly increasing order starting at 0
// and are never reused.
type PeerID uint64

// Peer is the distributor's view of a participant: where to deliver its messages.
type Peer struct {
	ID       PeerID
	Outbound *Mailbox
}

// Event is the only input of the Distributor. It is a closed set: Joined and Received.
type Event interface {
	isEvent()
}

// Joined registers a peer. The peer receives only messages submitted after it.
type Joined struct {
	Peer Peer
}

// Received carries one payload read from Source. Payload must not be modified
// after submission; the same slice is handed to every recipient.
type Received struct {
	Source  PeerID
	Payload []byte
}

func (Joined) isEvent()   {}
func (Received) isEvent() {}
