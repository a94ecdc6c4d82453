// Package calls tracks media calls with remote peers and drives each one
// through pending, answered and closed.
package calls

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/peernode/internal/app"
	"github.com/dkeye/peernode/internal/core"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
)

// Manager owns the call registry and every media handle inside it.
type Manager struct {
	caller   core.Caller
	sessions *app.Registry[Session]

	mu      sync.Mutex
	waiting map[core.MediaHandle]*Pending
}

func NewManager(caller core.Caller) *Manager {
	m := &Manager{
		caller:   caller,
		sessions: app.NewRegistry[Session](),
		waiting:  make(map[core.MediaHandle]*Pending),
	}
	app.TrackLen(m.sessions, otel.Meter("peernode/calls"), "peernode.calls.active", "Number of tracked call sessions")
	return m
}

// Sessions is the observable call collection.
func (m *Manager) Sessions() *app.Registry[Session] { return m.sessions }

// OnInboundCall registers an unanswered call. It does not answer it.
func (m *Manager) OnInboundCall(h core.MediaHandle) {
	peer := h.Peer()
	log.Info().Str("module", "app.calls").Str("peer", peer).Msg("inbound call")

	h.OnClose(func() {
		m.remove(h)
		_ = h.Close()
	})
	h.OnError(func(err error) {
		log.Warn().Err(err).Str("module", "app.calls").Str("peer", peer).Msg("unanswered call failed")
		_ = h.Close()
	})

	m.put(Session{Peer: peer, Direction: Inbound, Media: h})
}

// MakeCall originates a call and returns once the transport accepted it.
// The session enters the registry when the remote stream arrives.
func (m *Manager) MakeCall(peer string, local core.MediaStream) (*Pending, error) {
	if peer == "" {
		return nil, fmt.Errorf("%w: peer is required to make a call", core.ErrInvalidArgument)
	}
	if local == nil {
		return nil, fmt.Errorf("%w: local stream is required to make a call", core.ErrInvalidArgument)
	}
	log.Info().Str("module", "app.calls").Str("peer", peer).Str("stream", local.ID()).Msg("making call")

	h, err := m.caller.Call(peer, local)
	if err != nil {
		return nil, core.NewTransportError(peer, "call", err)
	}

	s := Session{Peer: peer, Direction: Outbound, Answered: true, Media: h}
	return m.wait(s, local, m.put), nil
}

// AnswerCall answers every unanswered call, or the call of one peer when
// peer is set. Selection is taken from the registry at call time. Each
// returned Pending settles independently and, on success, replaces its entry.
func (m *Manager) AnswerCall(peer string, local core.MediaStream) []*Pending {
	snap := m.sessions.Snapshot()
	if len(snap) == 0 {
		log.Debug().Str("module", "app.calls").Msg("answer: no calls")
		return nil
	}

	var out []*Pending
	for _, s := range snap {
		if peer == "" && s.Answered {
			continue
		}
		if peer != "" && s.Peer != peer {
			continue
		}
		h := s.Media
		out = append(out, m.wait(s, local, func(res Session) {
			m.sessions.ReplaceWhere(byHandle(h), func(Session) Session { return res })
		}))
	}
	log.Debug().Str("module", "app.calls").Str("peer", peer).Int("selected", len(out)).Msg("answering calls")
	return out
}

// DisconnectFrom closes the call with peer. Unknown peers are ignored.
func (m *Manager) DisconnectFrom(peer string) {
	s, ok := m.sessions.FindWhere(byPeer(peer))
	if !ok {
		log.Debug().Str("module", "app.calls").Str("peer", peer).Msg("disconnect: no call")
		return
	}
	log.Info().Str("module", "app.calls").Str("peer", peer).Msg("disconnecting call")
	m.closeAndRemove(s.Media)
}

// DisconnectAll closes every tracked call, including outbound calls still
// waiting for a remote stream, and empties the registry.
func (m *Manager) DisconnectAll() {
	handles := make(map[core.MediaHandle]struct{})
	for _, s := range m.sessions.Snapshot() {
		handles[s.Media] = struct{}{}
	}
	m.mu.Lock()
	for h := range m.waiting {
		handles[h] = struct{}{}
	}
	m.mu.Unlock()

	log.Info().Str("module", "app.calls").Int("count", len(handles)).Msg("disconnecting all calls")
	for h := range handles {
		m.closeAndRemove(h)
	}
}

// wait runs the stream-wait protocol over s. commit publishes the resolved
// session; it is skipped for sessions that settle with an error.
func (m *Manager) wait(s Session, local core.MediaStream, commit func(Session)) *Pending {
	h := s.Media
	p := newPending(s)
	var closed atomic.Bool

	m.mu.Lock()
	p.follow(m.waiting[h])
	m.waiting[h] = p
	m.mu.Unlock()

	logger := log.With().Str("module", "app.calls").Str("peer", s.Peer).Str("direction", s.Direction.String()).Logger()

	h.OnStream(func(remote core.MediaStream) {
		res, ok := p.resolve(remote)
		if !ok {
			logger.Debug().Msg("stream after settle ignored")
			return
		}
		m.forget(h, p)
		logger.Info().Str("stream", remote.ID()).Msg("remote stream received")
		commit(res)
		if closed.Load() {
			m.remove(h)
		}
	})
	h.OnError(func(err error) {
		if p.reject(core.NewTransportError(s.Peer, "stream", err)) {
			m.forget(h, p)
			logger.Error().Err(err).Msg("call failed before remote stream")
		} else {
			logger.Warn().Err(err).Msg("call error")
		}
		_ = h.Close()
	})
	h.OnClose(func() {
		closed.Store(true)
		if p.reject(core.ErrCancelled) {
			m.forget(h, p)
			logger.Debug().Msg("closed while waiting for stream")
		}
		logger.Info().Msg("call closed")
		m.remove(h)
		_ = h.Close()
	})

	if local != nil && s.Direction == Inbound {
		p.markAnswered()
		// Only the waiter that flips Answered negotiates; a call answered
		// before just waits for its stream again.
		claimed := m.sessions.ReplaceWhere(unanswered(h), func(c Session) Session {
			c.Answered = true
			return c
		})
		if claimed == 0 {
			logger.Debug().Msg("already answered, waiting for stream")
			return p
		}
		if err := h.Answer(local); err != nil {
			if p.reject(core.NewTransportError(s.Peer, "answer", err)) {
				m.forget(h, p)
			}
			logger.Error().Err(err).Msg("answer failed")
			_ = h.Close()
			return p
		}
		logger.Info().Str("stream", local.ID()).Msg("call answered")
	}
	return p
}

// put stores s, replacing any other session with the same peer. The newest
// call wins; older handles are closed.
func (m *Manager) put(s Session) {
	var stale []core.MediaHandle
	m.sessions.Update(func(cur []Session) ([]Session, bool) {
		next := cur[:0]
		for _, c := range cur {
			if c.Media == s.Media {
				continue
			}
			if c.Peer == s.Peer {
				stale = append(stale, c.Media)
				continue
			}
			next = append(next, c)
		}
		return append(next, s), true
	})
	for _, h := range stale {
		log.Info().Str("module", "app.calls").Str("peer", s.Peer).Msg("replacing older call")
		_ = h.Close()
	}
}

func (m *Manager) remove(h core.MediaHandle) {
	if n := m.sessions.RemoveWhere(byHandle(h)); n > 0 {
		log.Debug().Str("module", "app.calls").Str("peer", h.Peer()).Msg("call removed")
	}
}

// closeAndRemove releases the handle before dropping the entry.
func (m *Manager) closeAndRemove(h core.MediaHandle) {
	m.mu.Lock()
	p := m.waiting[h]
	delete(m.waiting, h)
	m.mu.Unlock()
	if p != nil {
		p.reject(core.ErrCancelled)
	}

	if err := h.Close(); err != nil {
		log.Warn().Err(err).Str("module", "app.calls").Str("peer", h.Peer()).Msg("close error")
	}
	m.remove(h)
}

func (m *Manager) forget(h core.MediaHandle, p *Pending) {
	m.mu.Lock()
	if m.waiting[h] == p {
		delete(m.waiting, h)
	}
	m.mu.Unlock()
}
