package peer

import (
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/peernode/internal/app/data"
	"github.com/dkeye/peernode/internal/core"
)

type fakeEndpoint struct {
	id string

	mu           sync.Mutex
	onCall       func(core.MediaHandle)
	onConnection func(core.DataHandle)
	onError      func(error)
	setters      int
	closes       int
	closeErr     error
}

func (e *fakeEndpoint) ID() string { return e.id }

func (e *fakeEndpoint) Call(string, core.MediaStream) (core.MediaHandle, error) {
	return nil, errors.New("not dialable")
}

func (e *fakeEndpoint) Connect(string) (core.DataHandle, error) {
	return nil, errors.New("not dialable")
}

func (e *fakeEndpoint) OnCall(fn func(core.MediaHandle)) {
	e.mu.Lock()
	e.onCall = fn
	e.setters++
	e.mu.Unlock()
}

func (e *fakeEndpoint) OnConnection(fn func(core.DataHandle)) {
	e.mu.Lock()
	e.onConnection = fn
	e.setters++
	e.mu.Unlock()
}

func (e *fakeEndpoint) OnError(fn func(error)) {
	e.mu.Lock()
	e.onError = fn
	e.setters++
	e.mu.Unlock()
}

func (e *fakeEndpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closes++
	return e.closeErr
}

type fakeMedia struct{ peer string }

func (m *fakeMedia) Peer() string                    { return m.peer }
func (m *fakeMedia) OnStream(func(core.MediaStream)) {}
func (m *fakeMedia) OnError(func(error))             {}
func (m *fakeMedia) OnClose(func())                  {}
func (m *fakeMedia) Answer(core.MediaStream) error   { return nil }
func (m *fakeMedia) Close() error                    { return nil }

type fakeData struct {
	peer, id string
	onOpen   func()
}

func (d *fakeData) Peer() string         { return d.peer }
func (d *fakeData) ConnectionID() string { return d.id }
func (d *fakeData) OnOpen(fn func())     { d.onOpen = fn }
func (d *fakeData) OnData(func([]byte))  {}
func (d *fakeData) OnError(func(error))  {}
func (d *fakeData) OnClose(func())       {}
func (d *fakeData) Send([]byte) error    { return nil }
func (d *fakeData) Close() error         { return nil }

func TestNew(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}

	ep := &fakeEndpoint{id: "peerA"}
	n, err := New(ep)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !n.Ready() {
		t.Fatalf("node not ready after New")
	}
	if n.ID() != "peerA" {
		t.Fatalf("id = %q", n.ID())
	}
	if ep.setters != 3 {
		t.Fatalf("endpoint handlers set %d times, want 3", ep.setters)
	}
}

func TestWiresOnce(t *testing.T) {
	ep := &fakeEndpoint{id: "peerA"}
	n, _ := New(ep)

	n.PeerReady().Set(false)
	n.PeerReady().Set(true)
	n.PeerReady().Set(false)
	n.PeerReady().Set(true)
	if ep.setters != 3 {
		t.Fatalf("endpoint handlers set %d times, want 3", ep.setters)
	}
}

func TestRoutesEndpointEvents(t *testing.T) {
	ep := &fakeEndpoint{id: "peerA"}
	n, _ := New(ep)

	ep.onCall(&fakeMedia{peer: "peerB"})
	if n.Calls().Sessions().Len() != 1 {
		t.Fatalf("inbound call not tracked")
	}

	dh := &fakeData{peer: "peerC", id: "dc_1"}
	ep.onConnection(dh)
	dh.onOpen()
	s, ok := n.Data().Sessions().FindWhere(func(s data.Session) bool { return s.Peer == "peerC" })
	if !ok || s.ConnectionID != "dc_1" {
		t.Fatalf("inbound connection not tracked")
	}
}

func TestErrorSlot(t *testing.T) {
	ep := &fakeEndpoint{id: "peerA"}
	n, _ := New(ep)

	var seen []error
	n.Err().Subscribe(func(err error) { seen = append(seen, err) })

	ep.onError(errors.New("signaling lost"))
	var te *core.TransportError
	if !errors.As(n.Err().Get(), &te) || te.Op != "endpoint" {
		t.Fatalf("slot = %v, want endpoint TransportError", n.Err().Get())
	}

	own := core.NewTransportError("peerB", "offer", errors.New("bad sdp"))
	ep.onError(own)
	if n.Err().Get() != own {
		t.Fatalf("transport error was rewrapped")
	}
	if len(seen) != 2 {
		t.Fatalf("published %d errors, want 2", len(seen))
	}
}

func TestClose(t *testing.T) {
	ep := &fakeEndpoint{id: "peerA"}
	n, _ := New(ep)
	ep.onCall(&fakeMedia{peer: "peerB"})

	if err := n.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if ep.closes != 1 {
		t.Fatalf("endpoint closed %d times, want 1", ep.closes)
	}
	if n.Calls().Sessions().Len() != 0 {
		t.Fatalf("calls survived close")
	}
	if n.Ready() {
		t.Fatalf("closed node reports ready")
	}

	failing := &fakeEndpoint{id: "peerX", closeErr: errors.New("boom")}
	m, _ := New(failing)
	if err := m.Close(); err == nil {
		t.Fatalf("endpoint close error swallowed")
	}
}

func TestIndependentNodes(t *testing.T) {
	a, _ := New(&fakeEndpoint{id: "a"})
	epB := &fakeEndpoint{id: "b"}
	b, _ := New(epB)

	epB.onCall(&fakeMedia{peer: "c"})
	if a.Calls().Sessions().Len() != 0 || b.Calls().Sessions().Len() != 1 {
		t.Fatalf("nodes share call state")
	}
	a.Close()
	if !b.Ready() {
		t.Fatalf("closing one node affected another")
	}
}
