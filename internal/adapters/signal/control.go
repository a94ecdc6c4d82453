package signal

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func (s *Server) handleSignal(ctx context.Context, c *wsConn, data []byte) {
	msg, err := decode(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("peer", c.id).Msg("bad json")
		return
	}
	msg.Src = c.id

	_, span := tracer.Start(ctx, "signal."+msg.Type, trace.WithAttributes(
		attribute.String("signal.src", msg.Src),
		attribute.String("signal.dst", msg.Dst),
		attribute.String("signal.connection_id", msg.ConnectionID),
	))
	defer span.End()

	switch msg.Type {
	case TypePing:
		s.sendTo(c, Message{Type: TypePong})
	case TypeOffer:
		s.handleOffer(c, msg)
	case TypeAnswer:
		s.relay(c, msg, true)
	case TypeLeave:
		s.relay(c, msg, false)
	default:
		log.Warn().Str("module", "signal").Str("peer", c.id).Str("type", msg.Type).Msg("unknown signal")
	}
}

func (s *Server) handleOffer(c *wsConn, msg Message) {
	if !s.limiter.Allow(c.id) {
		log.Warn().Str("module", "signal").Str("peer", c.id).Msg("offer rate limited")
		s.sendTo(c, Message{Type: TypeError, Src: msg.Dst, ConnectionID: msg.ConnectionID, Error: CodeRateLimited})
		return
	}
	s.relay(c, msg, true)
}

// relay forwards msg to its destination. Senders of messages that expect a
// reply learn about unknown destinations.
func (s *Server) relay(from *wsConn, msg Message, report bool) {
	dst, ok := s.lookup(msg.Dst)
	if !ok {
		log.Debug().Str("module", "signal").Str("peer", from.id).Str("dst", msg.Dst).Str("type", msg.Type).Msg("destination unavailable")
		if report {
			s.sendTo(from, Message{Type: TypeError, Src: msg.Dst, ConnectionID: msg.ConnectionID, Error: CodePeerUnavailable})
		}
		return
	}
	s.sendTo(dst, msg)
}

func (s *Server) sendTo(c *wsConn, msg Message) {
	b, err := msg.encode()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendTo marshal")
		return
	}
	err = c.TrySend(b)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrBackpressure) {
		log.Debug().Err(err).Str("module", "signal").Str("peer", c.id).Msg("send to closed peer")
		return
	}
	switch s.opts.Policy.OnBackpressure(c.id, msg) {
	case KickPeer:
		log.Warn().Str("module", "signal").Str("peer", c.id).Msg("send queue full, kicking peer")
		s.unregister(c)
		c.Close()
	case DropMessage:
		log.Warn().Str("module", "signal").Str("peer", c.id).Str("type", msg.Type).Msg("send queue full, dropping message")
	}
}
