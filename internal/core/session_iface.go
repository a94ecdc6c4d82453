package core

// Endpoint is the local side of the peer transport, bound to one identifier.
type Endpoint interface {
	ID() string

	// Call originates an outbound media call.
	Call(peer string, local MediaStream) (MediaHandle, error)
	// Connect originates an outbound data connection.
	Connect(peer string) (DataHandle, error)

	OnCall(func(MediaHandle))
	OnConnection(func(DataHandle))
	OnError(func(error))

	Close() error
}

// Caller originates calls. Implemented by Endpoint.
type Caller interface {
	Call(peer string, local MediaStream) (MediaHandle, error)
}

// Dialer originates data connections. Implemented by Endpoint.
type Dialer interface {
	Connect(peer string) (DataHandle, error)
}
