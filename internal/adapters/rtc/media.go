package rtc

import (
	"context"
	"fmt"

	"github.com/dkeye/peernode/internal/adapters/signal"
	"github.com/dkeye/peernode/internal/core"
	"github.com/pion/webrtc/v4"
)

// mediaConn is a call. Inbound calls hold the remote offer until answered.
type mediaConn struct {
	*connection

	offer     string
	remote    *RemoteStream
	delivered bool
	answered  bool
	onStream  func(core.MediaStream)
}

func newMediaConn(c *connection) *mediaConn {
	m := &mediaConn{connection: c}
	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")

		c.mu.Lock()
		first := m.remote == nil
		if first {
			m.remote = newRemoteStream(track.StreamID())
		}
		m.remote.add(track)
		remote, cb := m.remote, m.onStream
		deliver := first && cb != nil
		if deliver {
			m.delivered = true
		}
		c.mu.Unlock()

		if deliver {
			cb(remote)
		}
	})
	return m
}

// OnStream sets the stream handler. A stream that arrived before any
// handler was set is delivered to the first one.
func (m *mediaConn) OnStream(fn func(core.MediaStream)) {
	m.mu.Lock()
	m.onStream = fn
	late := fn != nil && m.remote != nil && !m.delivered
	if late {
		m.delivered = true
	}
	remote := m.remote
	m.mu.Unlock()

	if late {
		fn(remote)
	}
}

// Answer sends local back to the caller. Only the first call negotiates;
// later ones are no-ops.
func (m *mediaConn) Answer(local core.MediaStream) error {
	if m.offer == "" {
		return fmt.Errorf("answer %s: no remote offer", m.id)
	}
	m.mu.Lock()
	again := m.answered
	m.answered = true
	m.mu.Unlock()
	if again {
		m.logger.Warn().Msg("call already answered")
		return nil
	}

	ctx, span := tracer.Start(context.Background(), "rtc.answer")
	defer span.End()
	if err := m.addTracks(local); err != nil {
		return err
	}
	sdp, err := m.applyOfferAndCreateAnswer(ctx, m.offer)
	if err != nil {
		span.RecordError(err)
		return err
	}
	return m.ep.send(signal.Message{
		Type:         signal.TypeAnswer,
		Dst:          m.peer,
		ConnectionID: m.id,
		Kind:         signal.KindMedia,
		SDP:          sdp,
	})
}

func (m *mediaConn) addTracks(local core.MediaStream) error {
	ls, ok := local.(*LocalStream)
	if !ok {
		return ErrForeignStream
	}
	for _, t := range ls.Tracks() {
		if _, err := m.pc.AddTrack(t); err != nil {
			return fmt.Errorf("add track %s: %w", t.ID(), err)
		}
	}
	return nil
}
