package signal

import (
	"sync"

	"github.com/gorilla/websocket"
)

// wsConn is one registered websocket with its outbound queue. Only the
// write pump writes to the socket.
type wsConn struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newWSConn(id string, ws *websocket.Conn, queue int) *wsConn {
	return &wsConn{id: id, conn: ws, send: make(chan []byte, queue)}
}

func (c *wsConn) TrySend(f []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
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
