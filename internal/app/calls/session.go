package calls

import "github.com/dkeye/peernode/internal/core"

type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// Session is one call with a remote peer as seen by the registry.
// Values are immutable once published; a state change replaces the entry.
type Session struct {
	Peer      string
	Direction Direction
	Answered  bool
	Media     core.MediaHandle
	// Remote is nil until the remote side's stream arrives.
	Remote core.MediaStream
}

func byHandle(h core.MediaHandle) func(Session) bool {
	return func(s Session) bool { return s.Media == h }
}

func unanswered(h core.MediaHandle) func(Session) bool {
	return func(s Session) bool { return s.Media == h && !s.Answered }
}

func byPeer(peer string) func(Session) bool {
	return func(s Session) bool { return s.Peer == peer }
}
