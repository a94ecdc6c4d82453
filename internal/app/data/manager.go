// Package data tracks data connections with remote peers.
package data

import (
	"errors"
	"fmt"

	"github.com/dkeye/peernode/internal/app"
	"github.com/dkeye/peernode/internal/core"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
)

// Manager owns the data session registry and the handles inside it.
// A connection enters the registry when it opens and leaves it when it closes.
type Manager struct {
	dialer   core.Dialer
	sessions *app.Registry[Session]
}

func NewManager(dialer core.Dialer) *Manager {
	m := &Manager{
		dialer:   dialer,
		sessions: app.NewRegistry[Session](),
	}
	app.TrackLen(m.sessions, otel.Meter("peernode/data"), "peernode.data.active", "Number of open data sessions")
	return m
}

// Sessions is the observable data session collection.
func (m *Manager) Sessions() *app.Registry[Session] { return m.sessions }

// OnInboundConnection wires a connection raised by the transport. Payloads
// are dropped until a handler is bound with UseDataStream.
func (m *Manager) OnInboundConnection(h core.DataHandle) {
	log.Info().Str("module", "app.data").Str("peer", h.Peer()).Str("connection_id", h.ConnectionID()).Msg("inbound connection")
	m.bind(h, nil)
}

// Connect opens a data connection to address and binds onData to it. The
// handle is returned before it opens; readiness shows up in Sessions.
func (m *Manager) Connect(address string, onData Handler) (core.DataHandle, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: address is required to connect", core.ErrInvalidArgument)
	}
	h, err := m.dialer.Connect(address)
	if err != nil {
		return nil, core.NewTransportError(address, "connect", err)
	}
	log.Info().Str("module", "app.data").Str("peer", address).Str("connection_id", h.ConnectionID()).Msg("connecting")
	m.bind(h, onData)
	return h, nil
}

// UseDataStream rebinds the data handler of the first connection with peer,
// or of every tracked connection when peer is empty.
func (m *Manager) UseDataStream(onData Handler, peer string) {
	if peer != "" {
		s, ok := m.sessions.FindWhere(byPeer(peer))
		if !ok {
			log.Debug().Str("module", "app.data").Str("peer", peer).Msg("use data stream: no connection")
			return
		}
		s.receiver.set(onData)
		return
	}

	snap := m.sessions.Snapshot()
	log.Debug().Str("module", "app.data").Int("count", len(snap)).Msg("rebinding data handler on all connections")
	for _, s := range snap {
		s.receiver.set(onData)
	}
}

// Send writes payload to the first connection with peer. An unknown peer is
// not an error.
func (m *Manager) Send(peer string, payload []byte) error {
	s, ok := m.sessions.FindWhere(byPeer(peer))
	if !ok {
		log.Debug().Str("module", "app.data").Str("peer", peer).Msg("send: no connection")
		return nil
	}
	if err := s.Data.Send(payload); err != nil {
		return core.NewTransportError(peer, "send", err)
	}
	return nil
}

// SendAll writes payload to every tracked connection.
func (m *Manager) SendAll(payload []byte) error {
	var errs []error
	for _, s := range m.sessions.Snapshot() {
		if err := s.Data.Send(payload); err != nil {
			errs = append(errs, core.NewTransportError(s.Peer, "send", err))
		}
	}
	return errors.Join(errs...)
}

// Disconnect closes and drops the first connection with peer.
func (m *Manager) Disconnect(peer string) {
	s, ok := m.sessions.FindWhere(byPeer(peer))
	if !ok {
		log.Debug().Str("module", "app.data").Str("peer", peer).Msg("disconnect: no connection")
		return
	}
	log.Info().Str("module", "app.data").Str("peer", peer).Str("connection_id", s.ConnectionID).Msg("disconnecting")
	m.closeHandle(s)
	m.sessions.RemoveWhere(byConnection(s.ConnectionID))
}

// DisconnectAll closes every tracked connection and empties the registry.
func (m *Manager) DisconnectAll() {
	snap := m.sessions.Snapshot()
	log.Info().Str("module", "app.data").Int("count", len(snap)).Msg("disconnecting all connections")
	for _, s := range snap {
		m.closeHandle(s)
	}
	m.sessions.Update(func(cur []Session) ([]Session, bool) {
		return nil, len(cur) > 0
	})
}

func (m *Manager) bind(h core.DataHandle, onData Handler) {
	s := Session{
		Peer:         h.Peer(),
		ConnectionID: h.ConnectionID(),
		Data:         h,
		receiver:     &receiver{cb: onData},
	}
	logger := log.With().Str("module", "app.data").Str("peer", s.Peer).Str("connection_id", s.ConnectionID).Logger()

	h.OnOpen(func() {
		if m.add(s) {
			logger.Info().Msg("connection open")
		} else {
			logger.Debug().Msg("already connected")
		}
	})
	// Removal matches the handle so a rejected duplicate that closes
	// leaves the tracked session with its connection id in place.
	h.OnClose(func() {
		if m.sessions.RemoveWhere(byHandle(h)) > 0 {
			logger.Info().Msg("connection closed")
		}
	})
	h.OnData(func(payload []byte) {
		msg := Message{Peer: s.Peer, ConnectionID: s.ConnectionID, Payload: payload}
		if !s.receiver.deliver(msg) {
			logger.Debug().Int("bytes", len(payload)).Msg("data received, no handler bound")
		}
	})
	h.OnError(func(err error) {
		logger.Warn().Err(err).Msg("connection error")
	})
}

// add appends s unless a session with the same connection id is tracked.
func (m *Manager) add(s Session) bool {
	return m.sessions.Update(func(cur []Session) ([]Session, bool) {
		for _, c := range cur {
			if c.ConnectionID == s.ConnectionID {
				return cur, false
			}
		}
		return append(cur, s), true
	})
}

func (m *Manager) closeHandle(s Session) {
	if err := s.Data.Close(); err != nil {
		log.Warn().Err(err).Str("module", "app.data").Str("peer", s.Peer).Msg("close error")
	}
}
