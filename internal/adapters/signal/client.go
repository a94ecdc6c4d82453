package signal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Client is the peer side of the signaling connection.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	pingPeriod time.Duration

	mu     sync.RWMutex
	closed bool
}

// Dial connects to the server at rawURL as id and waits for the server to
// confirm the registration. An empty id asks the server to pick one.
func Dial(ctx context.Context, rawURL, id string, pingPeriod time.Duration) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse signal url: %w", err)
	}
	if id != "" {
		q := u.Query()
		q.Set("id", id)
		u.RawQuery = q.Encode()
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial signal: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("await open: %w", err)
	}
	_ = ws.SetReadDeadline(time.Time{})

	msg, err := decode(data)
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("await open: %w", err)
	}
	switch msg.Type {
	case TypeOpen:
	case TypeError:
		_ = ws.Close()
		return nil, codeError(msg.Error)
	default:
		_ = ws.Close()
		return nil, fmt.Errorf("await open: unexpected %q", msg.Type)
	}

	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	c := &Client{
		id:         msg.ID,
		conn:       ws,
		send:       make(chan []byte, 32),
		done:       make(chan struct{}),
		pingPeriod: pingPeriod,
	}
	log.Info().Str("module", "signal.client").Str("id", c.id).Msg("registered")
	go c.writeLoop()
	return c, nil
}

// ID is the id the server registered this client under.
func (c *Client) ID() string { return c.id }

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Listen delivers every inbound message to onMessage until the connection
// ends, then calls onClosed with the read error (nil after Close).
// It must be called once.
func (c *Client) Listen(onMessage func(Message), onClosed func(error)) {
	go func() {
		var cause error
		for {
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if !c.isClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					cause = err
				}
				break
			}
			msg, err := decode(data)
			if err != nil {
				log.Warn().Err(err).Str("module", "signal.client").Msg("bad json")
				continue
			}
			if msg.Type == TypePong {
				continue
			}
			onMessage(msg)
		}
		c.Close()
		if onClosed != nil {
			onClosed(cause)
		}
	}()
}

// Send queues msg for delivery.
func (c *Client) Send(msg Message) error {
	b, err := msg.encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close ends the connection. Calling it again is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	<-c.done
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) writeLoop() {
	defer close(c.done)
	defer c.conn.Close()

	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()
	ping, _ := Message{Type: TypePing}.encode()

	for {
		var data []byte
		select {
		case <-ticker.C:
			data = ping
		case b, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			data = b
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				log.Warn().Err(err).Str("module", "signal.client").Msg("write error")
			}
			return
		}
	}
}
