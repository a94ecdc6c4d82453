package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type eventConn struct {
	conn *websocket.Conn
	send chan Event

	mu     sync.RWMutex
	closed bool
}

func (c *eventConn) trySend(ev Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *eventConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// hub fans events out to websocket subscribers. Subscribers that fall
// behind are dropped.
type hub struct {
	mu      sync.RWMutex
	clients map[*eventConn]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*eventConn]struct{})}
}

func (h *hub) publish(ev Event) {
	h.mu.RLock()
	var slow []*eventConn
	for c := range h.clients {
		if !c.trySend(ev) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Str("module", "adapters.http").Msg("event subscriber too slow, dropping")
		h.remove(c)
	}
}

func (h *hub) remove(c *eventConn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*eventConn]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

// serve upgrades the request and streams events, starting with first.
func (h *hub) serve(c *gin.Context, first ...Event) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}
	ec := &eventConn{conn: ws, send: make(chan Event, 64)}
	for _, ev := range first {
		ec.send <- ev
	}
	h.mu.Lock()
	h.clients[ec] = struct{}{}
	h.mu.Unlock()
	log.Info().Str("module", "adapters.http").Str("remote", c.Request.RemoteAddr).Msg("event subscriber connected")

	go h.writePump(ec)
	go h.readPump(ec)
}

func (h *hub) writePump(c *eventConn) {
	for ev := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			break
		}
		if err := c.conn.WriteJSON(ev); err != nil {
			log.Debug().Err(err).Str("module", "adapters.http").Msg("event write error")
			break
		}
	}
	h.remove(c)
}

// readPump only notices the subscriber going away.
func (h *hub) readPump(c *eventConn) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
