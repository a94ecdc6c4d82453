// Package rtc implements the peer transport on pion/webrtc. Offers and
// answers are exchanged whole over the signaling server, without trickle.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/peernode/internal/adapters/signal"
	"github.com/dkeye/peernode/internal/core"
	"github.com/dkeye/peernode/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("peernode/rtc")

// signaler is the part of signal.Client the endpoint uses.
type signaler interface {
	ID() string
	Send(signal.Message) error
	Listen(onMessage func(signal.Message), onClosed func(error))
	Close() error
}

// handle is what the endpoint tracks per connection id.
type handle interface {
	applyAnswer(sdp string) error
	fail(err error)
	shutdown(notify bool) error
}

// Endpoint is a core.Endpoint bound to one signaling registration.
type Endpoint struct {
	sig signaler
	api *webrtc.API
	cfg webrtc.Configuration

	mu           sync.Mutex
	conns        map[string]handle
	onCall       func(core.MediaHandle)
	onConnection func(core.DataHandle)
	onError      func(error)
	closed       bool
}

// NewEndpoint registers with the signaling server and starts listening for
// offers.
func NewEndpoint(ctx context.Context, opts Options) (*Endpoint, error) {
	api, err := NewAPI(opts)
	if err != nil {
		return nil, err
	}
	sig, err := signal.Dial(ctx, opts.SignalURL, opts.ID, opts.PingPeriod)
	if err != nil {
		return nil, core.NewTransportError(opts.ID, "register", err)
	}
	return newEndpoint(sig, api, DefaultWebRTCConfig(opts.ICEServers)), nil
}

func newEndpoint(sig signaler, api *webrtc.API, cfg webrtc.Configuration) *Endpoint {
	e := &Endpoint{
		sig:   sig,
		api:   api,
		cfg:   cfg,
		conns: make(map[string]handle),
	}
	sig.Listen(e.dispatch, e.signalClosed)
	log.Info().Str("module", "rtc").Str("id", sig.ID()).Msg("endpoint up")
	return e
}

func (e *Endpoint) ID() string { return e.sig.ID() }

func (e *Endpoint) OnCall(fn func(core.MediaHandle)) {
	e.mu.Lock()
	e.onCall = fn
	e.mu.Unlock()
}

func (e *Endpoint) OnConnection(fn func(core.DataHandle)) {
	e.mu.Lock()
	e.onConnection = fn
	e.mu.Unlock()
}

func (e *Endpoint) OnError(fn func(error)) {
	e.mu.Lock()
	e.onError = fn
	e.mu.Unlock()
}

// Call offers local to peer. The handle is returned once the offer is sent.
func (e *Endpoint) Call(peer string, local core.MediaStream) (core.MediaHandle, error) {
	ctx, span := tracer.Start(context.Background(), "rtc.call", trace.WithAttributes(attribute.String("peer", peer)))
	defer span.End()

	c, err := newConnection(e, peer, domain.NewCallID(), signal.KindMedia)
	if err != nil {
		return nil, err
	}
	m := newMediaConn(c)
	if err := m.addTracks(local); err != nil {
		_ = c.pc.Close()
		return nil, err
	}
	if err := e.offer(ctx, c, m, ""); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return m, nil
}

// Connect opens a data channel to peer. The handle opens when the channel does.
func (e *Endpoint) Connect(peer string) (core.DataHandle, error) {
	ctx, span := tracer.Start(context.Background(), "rtc.connect", trace.WithAttributes(attribute.String("peer", peer)))
	defer span.End()

	c, err := newConnection(e, peer, domain.NewConnectionID(), signal.KindData)
	if err != nil {
		return nil, err
	}
	d := newDataConn(c)
	dc, err := c.pc.CreateDataChannel(c.id, nil)
	if err != nil {
		_ = c.pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	d.attach(dc)
	if err := e.offer(ctx, c, d, c.id); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return d, nil
}

// Close tears down every connection and leaves the signaling server.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conns := make([]handle, 0, len(e.conns))
	for _, h := range e.conns {
		conns = append(conns, h)
	}
	e.mu.Unlock()

	var errs []error
	for _, h := range conns {
		errs = append(errs, h.shutdown(true))
	}
	errs = append(errs, e.sig.Close())
	log.Info().Str("module", "rtc").Str("id", e.sig.ID()).Msg("endpoint closed")
	return errors.Join(errs...)
}

func (e *Endpoint) offer(ctx context.Context, c *connection, h handle, label string) error {
	sdp, err := c.createOffer(ctx)
	if err != nil {
		_ = c.pc.Close()
		return err
	}
	e.track(c.id, h)
	err = e.send(signal.Message{
		Type:         signal.TypeOffer,
		Dst:          c.peer,
		ConnectionID: c.id,
		Kind:         c.kind,
		SDP:          sdp,
		Label:        label,
	})
	if err != nil {
		e.forget(c.id)
		_ = c.pc.Close()
		return err
	}
	c.logger.Info().Str("kind", c.kind).Msg("offer sent")
	return nil
}

func (e *Endpoint) dispatch(msg signal.Message) {
	switch msg.Type {
	case signal.TypeOffer:
		e.handleOffer(msg)
	case signal.TypeAnswer:
		h, ok := e.lookup(msg.ConnectionID)
		if !ok {
			log.Debug().Str("module", "rtc").Str("connection_id", msg.ConnectionID).Msg("answer for unknown connection")
			return
		}
		if err := h.applyAnswer(msg.SDP); err != nil {
			h.fail(core.NewTransportError(msg.Src, "answer", err))
			_ = h.shutdown(true)
		}
	case signal.TypeLeave:
		if h, ok := e.lookup(msg.ConnectionID); ok {
			_ = h.shutdown(false)
		}
	case signal.TypeError:
		err := core.NewTransportError(msg.Src, "signal", errors.New(msg.Error))
		if h, ok := e.lookup(msg.ConnectionID); ok {
			h.fail(err)
			_ = h.shutdown(false)
			return
		}
		e.raise(err)
	}
}

func (e *Endpoint) handleOffer(msg signal.Message) {
	logger := log.With().Str("module", "rtc").Str("peer", msg.Src).Str("connection_id", msg.ConnectionID).Logger()
	if msg.Src == "" || msg.ConnectionID == "" {
		logger.Warn().Msg("offer without source or connection id")
		return
	}

	c, err := newConnection(e, msg.Src, msg.ConnectionID, msg.Kind)
	if err != nil {
		e.raise(core.NewTransportError(msg.Src, "offer", err))
		return
	}

	switch msg.Kind {
	case signal.KindMedia:
		m := newMediaConn(c)
		m.offer = msg.SDP
		e.mu.Lock()
		cb := e.onCall
		e.mu.Unlock()
		if cb == nil {
			logger.Warn().Msg("no call handler, rejecting call")
			_ = c.shutdown(true)
			return
		}
		e.track(c.id, m)
		cb(m)

	case signal.KindData:
		d := newDataConn(c)
		c.pc.OnDataChannel(d.attach)
		e.mu.Lock()
		cb := e.onConnection
		e.mu.Unlock()
		if cb == nil {
			logger.Warn().Msg("no connection handler, rejecting connection")
			_ = c.shutdown(true)
			return
		}
		e.track(c.id, d)
		cb(d)
		go e.answerData(c, msg.SDP)

	default:
		logger.Warn().Str("kind", msg.Kind).Msg("offer of unknown kind")
		_ = c.shutdown(true)
	}
}

func (e *Endpoint) answerData(c *connection, offer string) {
	ctx, span := tracer.Start(context.Background(), "rtc.accept", trace.WithAttributes(attribute.String("peer", c.peer)))
	defer span.End()

	sdp, err := c.applyOfferAndCreateAnswer(ctx, offer)
	if err == nil {
		err = e.send(signal.Message{Type: signal.TypeAnswer, Dst: c.peer, ConnectionID: c.id, Kind: signal.KindData, SDP: sdp})
	}
	if err != nil {
		span.RecordError(err)
		c.fail(core.NewTransportError(c.peer, "accept", err))
		_ = c.shutdown(true)
	}
}

func (e *Endpoint) signalClosed(err error) {
	if err == nil {
		return
	}
	e.raise(core.NewTransportError("", "signal", err))
}

func (e *Endpoint) raise(err error) {
	e.mu.Lock()
	cb := e.onError
	e.mu.Unlock()
	log.Error().Err(err).Str("module", "rtc").Msg("endpoint error")
	if cb != nil {
		cb(err)
	}
}

func (e *Endpoint) send(msg signal.Message) error {
	if err := e.sig.Send(msg); err != nil {
		return fmt.Errorf("signal %s: %w", msg.Type, err)
	}
	return nil
}

func (e *Endpoint) track(id string, h handle) {
	e.mu.Lock()
	e.conns[id] = h
	e.mu.Unlock()
}

func (e *Endpoint) forget(id string) {
	e.mu.Lock()
	delete(e.conns, id)
	e.mu.Unlock()
}

func (e *Endpoint) lookup(id string) (handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.conns[id]
	return h, ok
}
