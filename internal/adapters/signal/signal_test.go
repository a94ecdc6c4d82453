package signal

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, opts ServerOptions) (*Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(opts)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { srv.HandleSignal(ctx, c) })
	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
		ts.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url, id string) (*Client, <-chan Message) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, id, time.Second)
	if err != nil {
		t.Fatalf("dial %q: %v", id, err)
	}
	inbox := make(chan Message, 16)
	c.Listen(func(m Message) { inbox <- m }, nil)
	t.Cleanup(func() { _ = c.Close() })
	return c, inbox
}

func recv(t *testing.T, inbox <-chan Message) Message {
	t.Helper()
	select {
	case m := <-inbox:
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("no message received")
		return Message{}
	}
}

func TestRoutesOfferAndAnswer(t *testing.T) {
	_, url := newTestServer(t, ServerOptions{})
	alice, aliceIn := dial(t, url, "alice")
	bob, bobIn := dial(t, url, "bob")

	if err := alice.Send(Message{Type: TypeOffer, Dst: "bob", Src: "mallory", ConnectionID: "mc_1", Kind: KindMedia, SDP: "v=0"}); err != nil {
		t.Fatalf("send offer: %v", err)
	}
	got := recv(t, bobIn)
	if got.Type != TypeOffer || got.Src != "alice" || got.ConnectionID != "mc_1" || got.SDP != "v=0" {
		t.Fatalf("unexpected offer %+v", got)
	}

	if err := bob.Send(Message{Type: TypeAnswer, Dst: "alice", ConnectionID: "mc_1", SDP: "v=0 answer"}); err != nil {
		t.Fatalf("send answer: %v", err)
	}
	got = recv(t, aliceIn)
	if got.Type != TypeAnswer || got.Src != "bob" {
		t.Fatalf("unexpected answer %+v", got)
	}
}

func TestRegistration(t *testing.T) {
	srv, url := newTestServer(t, ServerOptions{})

	t.Run("generated id", func(t *testing.T) {
		c, _ := dial(t, url, "")
		if c.ID() == "" {
			t.Fatalf("server did not assign an id")
		}
	})

	t.Run("taken id", func(t *testing.T) {
		dial(t, url, "carol")
		_, err := Dial(context.Background(), url, "carol", time.Second)
		if !errors.Is(err, ErrUnavailableID) {
			t.Fatalf("err = %v, want ErrUnavailableID", err)
		}
		found := false
		for _, id := range srv.Peers() {
			if id == "carol" {
				found = true
			}
		}
		if !found {
			t.Fatalf("carol missing from %v", srv.Peers())
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		_, err := Dial(context.Background(), url, "not valid!", time.Second)
		if !errors.Is(err, ErrInvalidID) {
			t.Fatalf("err = %v, want ErrInvalidID", err)
		}
	})
}

func TestUnknownDestination(t *testing.T) {
	_, url := newTestServer(t, ServerOptions{})
	alice, inbox := dial(t, url, "alice")

	_ = alice.Send(Message{Type: TypeOffer, Dst: "ghost", ConnectionID: "dc_1", Kind: KindData})
	got := recv(t, inbox)
	if got.Type != TypeError || got.Error != CodePeerUnavailable || got.Src != "ghost" || got.ConnectionID != "dc_1" {
		t.Fatalf("unexpected reply %+v", got)
	}

	// leave to an unknown peer is dropped silently
	_ = alice.Send(Message{Type: TypeLeave, Dst: "ghost", ConnectionID: "dc_1"})
	select {
	case m := <-inbox:
		t.Fatalf("unexpected reply to leave %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOfferRateLimit(t *testing.T) {
	_, url := newTestServer(t, ServerOptions{OfferLimit: 1, OfferInterval: time.Minute})
	alice, aliceIn := dial(t, url, "alice")
	_, bobIn := dial(t, url, "bob")

	_ = alice.Send(Message{Type: TypeOffer, Dst: "bob", ConnectionID: "mc_1"})
	_ = alice.Send(Message{Type: TypeOffer, Dst: "bob", ConnectionID: "mc_2"})

	if got := recv(t, bobIn); got.ConnectionID != "mc_1" {
		t.Fatalf("bob got %+v, want mc_1", got)
	}
	got := recv(t, aliceIn)
	if got.Error != CodeRateLimited || got.ConnectionID != "mc_2" {
		t.Fatalf("alice got %+v, want rate limit error", got)
	}
}

func TestPingPong(t *testing.T) {
	_, url := newTestServer(t, ServerOptions{})
	ws, _, err := websocket.DefaultDialer.Dial(url+"?id=raw", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	var open Message
	if err := ws.ReadJSON(&open); err != nil || open.Type != TypeOpen || open.ID != "raw" {
		t.Fatalf("open = %+v, err = %v", open, err)
	}
	if err := ws.WriteJSON(Message{Type: TypePing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var pong Message
	if err := ws.ReadJSON(&pong); err != nil || pong.Type != TypePong {
		t.Fatalf("pong = %+v, err = %v", pong, err)
	}
}

func TestOfferRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewOfferRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	steps := []struct {
		advance time.Duration
		peer    string
		want    bool
	}{
		{0, "a", true},
		{100 * time.Millisecond, "a", true},
		{100 * time.Millisecond, "a", false},
		{0, "b", true},
		{time.Second, "a", true},
	}
	for i, st := range steps {
		now = now.Add(st.advance)
		if got := rl.Allow(st.peer); got != st.want {
			t.Fatalf("step %d: Allow(%s) = %v, want %v", i, st.peer, got, st.want)
		}
	}

	if !NewOfferRateLimiter(0, time.Second).Allow("a") {
		t.Fatalf("zero limit must not limit")
	}
}
