package core

// DataHandle is one data channel connection to a remote peer.
// Several handles may exist for the same peer, told apart by ConnectionID.
type DataHandle interface {
	Peer() string
	ConnectionID() string

	OnOpen(func())
	OnData(func([]byte))
	OnError(func(error))
	OnClose(func())

	// Send fails if the channel is not open yet.
	Send(payload []byte) error
	// Close is idempotent and triggers the close callback at most once.
	Close() error
}
