package core

// MediaStream is an opaque handle to a set of media tracks.
type MediaStream interface {
	ID() string
}

// MediaHandle is one call connection to a remote peer.
// Owned by the call manager; the manager must Close() it.
//
// Handler setters are single slot: setting a handler replaces the previous one.
type MediaHandle interface {
	// Peer returns the remote peer identifier.
	Peer() string
	// OnStream sets a callback invoked when the remote media stream arrives.
	OnStream(func(MediaStream))
	// OnError sets a callback for transport failures on this call.
	OnError(func(error))
	// OnClose sets a callback invoked once when the call is torn down.
	OnClose(func())
	// Answer accepts an inbound call with the given local stream.
	Answer(local MediaStream) error
	// Close is idempotent and triggers the close callback at most once.
	Close() error
}
