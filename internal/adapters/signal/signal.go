// Package signal brokers offer/answer exchange between peers over
// websockets, and provides the client the rtc transport dials it with.
package signal

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/peernode/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("peernode/signal")

type ServerOptions struct {
	ReadLimit     int64
	PingPeriod    time.Duration
	OfferLimit    int
	OfferInterval time.Duration
	QueueSize     int
	Policy        Policy
}

// Server registers peers by id and routes messages between them.
type Server struct {
	opts    ServerOptions
	limiter *OfferRateLimiter

	mu    sync.RWMutex
	peers map[string]*wsConn
}

func NewServer(opts ServerOptions) *Server {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.Policy == nil {
		opts.Policy = SimplePolicy{}
	}
	return &Server{
		opts:    opts,
		limiter: NewOfferRateLimiter(opts.OfferLimit, opts.OfferInterval),
		peers:   make(map[string]*wsConn),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and registers the peer named by the id
// query parameter, or a generated one when it is empty.
func (s *Server) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	id := domain.NewPeerID()
	if raw := c.Query("id"); raw != "" {
		if id, err = domain.ParsePeerID(raw); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("id", raw).Msg("rejecting peer")
			reject(ws, CodeInvalidID)
			return
		}
	}

	conn := newWSConn(id.String(), ws, s.opts.QueueSize)
	if !s.register(conn) {
		log.Warn().Str("module", "signal").Str("peer", conn.id).Msg("id taken")
		reject(ws, CodeUnavailableID)
		return
	}
	log.Info().Str("module", "signal").Str("peer", conn.id).Msg("peer registered")

	ctx, cancel := context.WithCancel(ctx)
	s.sendTo(conn, Message{Type: TypeOpen, ID: conn.id})

	go s.writePump(ctx, conn)
	go s.readPump(ctx, cancel, conn)
}

// Peers lists the registered ids in order.
func (s *Server) Peers() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Close disconnects every peer.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*wsConn, 0, len(s.peers))
	for _, c := range s.peers {
		conns = append(conns, c)
	}
	s.peers = make(map[string]*wsConn)
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (s *Server) register(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.peers[c.id]; taken {
		return false
	}
	s.peers[c.id] = c
	return true
}

// unregister drops c unless its id was already taken over by a newer conn.
func (s *Server) unregister(c *wsConn) {
	s.mu.Lock()
	if s.peers[c.id] == c {
		delete(s.peers, c.id)
	}
	s.mu.Unlock()
	s.limiter.Forget(c.id)
}

func (s *Server) lookup(id string) (*wsConn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.peers[id]
	return c, ok
}

// reject writes a single error frame to a socket that never got registered.
func reject(ws *websocket.Conn, code string) {
	b, _ := Message{Type: TypeError, Error: code}.encode()
	_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = ws.WriteMessage(websocket.TextMessage, b)
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code))
	_ = ws.Close()
}
