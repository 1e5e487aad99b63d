// Package session holds the per-socket Session type that the Client Handler
// and Server Coordinator share (section 4.4). A Session is the addressable
// unit the coordinator writes replies to; its Kind says whether it backs a
// logged-in user or a peer server, and the coordinator's user-session or
// peer-session map holds it under its nickname or server name.
package session

import (
	"sync/atomic"

	"github.com/horgh/chatd/internal/wire"
)

// ID uniquely identifies a Session for the lifetime of the process.
type ID uint64

var nextID uint64

// NextID returns a fresh, process-unique Session ID. Grounded on the
// teacher's Client.ID counter (client.go) - an incrementing uint64 rather
// than the TS6 base-36 ID scheme, since this protocol has no TS6 wire
// format to match.
func NextID() ID {
	return ID(atomic.AddUint64(&nextID, 1))
}

// Kind says what a Session currently represents.
type Kind int

const (
	// KindUnregistered is a connection still going through PASS/NICK/USER or
	// SERVER login (section 4.4's Connection Handler stage).
	KindUnregistered Kind = iota
	// KindUser is a connection that completed user registration.
	KindUser
	// KindPeer is a connection that completed server-to-server registration.
	KindPeer
)

// Session is the handle the coordinator uses to address one socket. Out
// holds the queue a per-connection writer goroutine drains to the
// underlying net.Conn - the coordinator never writes to the socket
// directly, matching the teacher's WriteChan pattern (client.go).
type Session struct {
	ID   ID
	Kind Kind

	// Identity is the nickname or server name this session was registered
	// under (the user-session map keys it by the case-folded nickname). Empty
	// until registration completes.
	Identity string

	Out chan wire.Message

	// RemoteAddr is the socket's remote address, used for logging and for
	// WHO/WHOIS host display.
	RemoteAddr string
}

// New creates a Session with a buffered outbound queue. The buffer size
// matches the teacher's client.go WriteChan sizing rationale: large enough
// that a slow reader doesn't fill it under ordinary traffic. Once it is
// full, Send drops messages rather than blocking the sender (see Send).
func New(remoteAddr string) *Session {
	return &Session{
		ID:         NextID(),
		Kind:       KindUnregistered,
		Out:        make(chan wire.Message, 256),
		RemoteAddr: remoteAddr,
	}
}

// Send enqueues msg for delivery to this session's socket. It never blocks
// forever: if the outbound queue is full the session is considered dead
// (the writer goroutine isn't keeping up, or has already exited) and Send
// reports false so the coordinator can drop the session instead of
// stalling on one slow peer.
func (s *Session) Send(msg wire.Message) bool {
	select {
	case s.Out <- msg:
		return true
	default:
		return false
	}
}

// Close closes the outbound queue, signalling the writer goroutine to
// finish flushing and exit.
func (s *Session) Close() {
	close(s.Out)
}
