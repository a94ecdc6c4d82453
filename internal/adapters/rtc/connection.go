package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/peernode/internal/adapters/signal"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const gatherTimeout = 10 * time.Second

var (
	ErrConnectionFailed = errors.New("peer connection failed")
	ErrGatherTimeout    = errors.New("ice gathering timed out")
	ErrNotOpen          = errors.New("data channel not open")
	ErrForeignStream    = errors.New("stream was not created by this transport")
)

// connection is the state shared by media and data handles: one
// PeerConnection with one remote peer, identified by its connection id.
type connection struct {
	ep     *Endpoint
	pc     *webrtc.PeerConnection
	peer   string
	id     string
	kind   string
	logger zerolog.Logger

	mu      sync.Mutex
	onError func(error)
	onClose func()
	closed  bool
}

func newConnection(ep *Endpoint, peer, id, kind string) (*connection, error) {
	pc, err := ep.api.NewPeerConnection(ep.cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	c := &connection{
		ep:     ep,
		pc:     pc,
		peer:   peer,
		id:     id,
		kind:   kind,
		logger: log.With().Str("module", "rtc").Str("peer", peer).Str("connection_id", id).Logger(),
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Debug().Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateFailed:
			c.fail(ErrConnectionFailed)
			go c.shutdown(true)
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			go c.shutdown(false)
		}
	})
	return c, nil
}

func (c *connection) Peer() string         { return c.peer }
func (c *connection) ConnectionID() string { return c.id }

func (c *connection) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *connection) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// Close tears the connection down and tells the remote peer.
func (c *connection) Close() error { return c.shutdown(true) }

func (c *connection) fail(err error) {
	c.mu.Lock()
	cb := c.onError
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	c.logger.Warn().Err(err).Msg("connection error")
	if cb != nil {
		cb(err)
	}
}

func (c *connection) shutdown(notify bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cb := c.onClose
	c.mu.Unlock()

	c.ep.forget(c.id)
	if notify {
		c.ep.send(signal.Message{Type: signal.TypeLeave, Dst: c.peer, ConnectionID: c.id, Kind: c.kind})
	}
	err := c.pc.Close()
	if err != nil {
		c.logger.Error().Err(err).Msg("close error")
	} else {
		c.logger.Info().Msg("closed")
	}
	if cb != nil {
		cb()
	}
	return err
}

// createOffer returns the complete local offer once gathering is done.
func (c *connection) createOffer(ctx context.Context) (string, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	return c.setLocal(ctx, offer)
}

// applyOfferAndCreateAnswer returns the complete local answer to offer.
func (c *connection) applyOfferAndCreateAnswer(ctx context.Context, offer string) (string, error) {
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		return "", fmt.Errorf("apply offer: %w", err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	return c.setLocal(ctx, answer)
}

func (c *connection) applyAnswer(answer string) error {
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	return nil
}

func (c *connection) setLocal(ctx context.Context, desc webrtc.SessionDescription) (string, error) {
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(desc); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, gatherTimeout)
	defer cancel()
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ErrGatherTimeout
	}
	return c.pc.LocalDescription().SDP, nil
}
