// Package peer is the facade a running node is driven through: one
// transport endpoint with its call and data managers.
package peer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/peernode/internal/app"
	"github.com/dkeye/peernode/internal/app/calls"
	"github.com/dkeye/peernode/internal/app/data"
	"github.com/dkeye/peernode/internal/core"
	"github.com/rs/zerolog/log"
)

// Node owns an endpoint and the session managers built against it.
// Nodes share no state with each other.
type Node struct {
	ep    core.Endpoint
	calls *calls.Manager
	data  *data.Manager

	err       *app.Value[error]
	peerReady *app.Value[bool]
	hostReady *app.Value[bool]

	mu     sync.Mutex
	wired  bool
	closed bool
}

// New builds a node over ep and wires the endpoint events once the local
// transport is ready.
func New(ep core.Endpoint) (*Node, error) {
	if ep == nil {
		return nil, fmt.Errorf("%w: endpoint is required", core.ErrInvalidArgument)
	}
	n := &Node{
		ep:        ep,
		calls:     calls.NewManager(ep),
		data:      data.NewManager(ep),
		err:       app.NewValue[error](nil),
		peerReady: app.NewValue(false),
		hostReady: app.NewValue(false),
	}
	n.peerReady.Subscribe(func(ready bool) {
		if ready {
			n.wire()
		}
	})
	n.peerReady.Set(true)
	log.Info().Str("module", "app.peer").Str("id", ep.ID()).Msg("node ready")
	return n, nil
}

func (n *Node) ID() string                  { return n.ep.ID() }
func (n *Node) Calls() *calls.Manager       { return n.calls }
func (n *Node) Data() *data.Manager         { return n.data }
func (n *Node) Err() *app.Value[error]      { return n.err }
func (n *Node) PeerReady() *app.Value[bool] { return n.peerReady }
func (n *Node) HostReady() *app.Value[bool] { return n.hostReady }

// Ready reports whether the transport is up and its events are wired.
func (n *Node) Ready() bool {
	return n.peerReady.Get() && n.hostReady.Get()
}

// Close disconnects every session and closes the endpoint. Calling it again
// is a no-op.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	log.Info().Str("module", "app.peer").Str("id", n.ep.ID()).Msg("closing node")
	n.calls.DisconnectAll()
	n.data.DisconnectAll()
	err := n.ep.Close()
	n.hostReady.Set(false)
	n.peerReady.Set(false)
	if err != nil {
		return fmt.Errorf("close endpoint: %w", err)
	}
	return nil
}

func (n *Node) wire() {
	n.mu.Lock()
	if n.wired || n.closed {
		n.mu.Unlock()
		return
	}
	n.wired = true
	n.mu.Unlock()

	n.ep.OnError(n.onError)
	n.ep.OnCall(n.calls.OnInboundCall)
	n.ep.OnConnection(n.data.OnInboundConnection)
	n.hostReady.Set(true)
}

// onError publishes an endpoint failure. The slot only ever holds
// *core.TransportError values.
func (n *Node) onError(err error) {
	var te *core.TransportError
	if !errors.As(err, &te) {
		te = core.NewTransportError("", "endpoint", err)
	}
	log.Error().Err(te).Str("module", "app.peer").Str("id", n.ep.ID()).Msg("endpoint error")
	n.err.Set(te)
}
