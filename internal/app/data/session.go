package data

import (
	"sync"

	"github.com/dkeye/peernode/internal/core"
)

// Message is one payload received on a data connection.
type Message struct {
	Peer         string
	ConnectionID string
	Payload      []byte
}

type Handler func(Message)

// Session is one open data connection as seen by the registry.
type Session struct {
	Peer         string
	ConnectionID string
	Data         core.DataHandle

	// shared by every snapshot copy of the session
	receiver *receiver
}

// receiver is the single data handler slot of a connection. Rebinding
// replaces the slot so at most one handler is active at a time.
type receiver struct {
	mu sync.Mutex
	cb Handler
}

func (r *receiver) set(cb Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cb = cb
}

func (r *receiver) deliver(msg Message) bool {
	r.mu.Lock()
	cb := r.cb
	r.mu.Unlock()

	if cb == nil {
		return false
	}
	cb(msg)
	return true
}

func byConnection(id string) func(Session) bool {
	return func(s Session) bool { return s.ConnectionID == id }
}

func byHandle(h core.DataHandle) func(Session) bool {
	return func(s Session) bool { return s.Data == h }
}

func byPeer(peer string) func(Session) bool {
	return func(s Session) bool { return s.Peer == peer }
}
