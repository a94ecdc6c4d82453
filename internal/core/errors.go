package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTransport       = errors.New("transport error")
	ErrCancelled       = errors.New("cancelled")
	ErrNotFound        = errors.New("not found")
)

// TransportError reports a failure raised by the peer transport,
// either on a single handle or on the endpoint itself.
type TransportError struct {
	Peer string
	Op   string
	Err  error
}

func NewTransportError(peer, op string, err error) *TransportError {
	return &TransportError{Peer: peer, Op: op, Err: err}
}

func (e *TransportError) Error() string {
	if e.Peer == "" {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Peer, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
