// Package echo relays RTP from a caller's track back out, one relay per
// source peer.
package echo

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

type Manager struct {
	mu     sync.RWMutex
	relays map[string]*Relay
}

func NewManager() *Manager {
	return &Manager{relays: make(map[string]*Relay)}
}

// Start runs a relay reading from src, replacing any relay of peer.
func (m *Manager) Start(ctx context.Context, peer string, src Source) *Relay {
	logger := log.With().Str("module", "app.echo").Str("peer", peer).Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := newRelay(src, cancel)

	m.mu.Lock()
	if old, ok := m.relays[peer]; ok {
		logger.Info().Msg("replacing existing relay")
		old.markAllDelete()
		old.cancel()
	}
	m.relays[peer] = relay
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")
	go relay.loop(relayCtx, &logger)
	return relay
}

// Reflect relays src of peer into sink, which is what an echo call does.
func (m *Manager) Reflect(ctx context.Context, peer string, src Source, sink Sink) *Relay {
	relay := m.Start(ctx, peer, src)
	relay.add(peer, NewOutTrack(sink))
	return relay
}

// AddSubscriber attaches sink to the relay of src for dst.
func (m *Manager) AddSubscriber(src, dst string, sink Sink) bool {
	relay, ok := m.relay(src)
	if !ok {
		return false
	}
	relay.add(dst, NewOutTrack(sink))
	return true
}

// Mute pauses or resumes forwarding from src to dst.
func (m *Manager) Mute(src, dst string, muted bool) {
	relay, ok := m.relay(src)
	if !ok {
		return
	}
	ot, ok := relay.outTrack(dst)
	if !ok {
		return
	}
	if muted {
		ot.MarkMuted()
	} else {
		ot.MarkOk()
	}
}

// Stop ends the relay of peer.
func (m *Manager) Stop(peer string) {
	m.mu.Lock()
	relay, ok := m.relays[peer]
	if ok {
		delete(m.relays, peer)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.markAllDelete()
	relay.cancel()
	log.Info().Str("module", "app.echo").Str("peer", peer).Msg("relay stopped")
}

// StopAll ends every relay.
func (m *Manager) StopAll() {
	for _, p := range m.Peers() {
		m.Stop(p)
	}
}

// Peers lists the peers with a running relay, in order.
func (m *Manager) Peers() []string {
	m.mu.RLock()
	peers := make([]string, 0, len(m.relays))
	for p := range m.relays {
		peers = append(peers, p)
	}
	m.mu.RUnlock()
	slices.Sort(peers)
	return peers
}

func (m *Manager) Active(peer string) bool {
	_, ok := m.relay(peer)
	return ok
}

func (m *Manager) relay(peer string) (*Relay, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.relays[peer]
	return r, ok
}
