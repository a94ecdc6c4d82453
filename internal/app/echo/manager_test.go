package echo

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
)

type chanSource chan *rtp.Packet

func (s chanSource) ReadPacket() (*rtp.Packet, error) {
	p, ok := <-s
	if !ok {
		return nil, io.EOF
	}
	return p, nil
}

type recordSink struct {
	mu   sync.Mutex
	seqs []uint16
	err  error
}

func (s *recordSink) WriteRTP(p *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.seqs = append(s.seqs, p.SequenceNumber)
	return nil
}

func (s *recordSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seqs)
}

func pkt(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: seq}}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReflect(t *testing.T) {
	m := NewManager()
	src := make(chanSource)
	sink := &recordSink{}
	relay := m.Reflect(context.Background(), "bob", src, sink)

	src <- pkt(1)
	src <- pkt(2)
	eventually(t, func() bool { return sink.count() == 2 })

	m.Mute("bob", "bob", true)
	src <- pkt(3)
	src <- pkt(4)
	src <- pkt(5)
	m.Mute("bob", "bob", false)
	src <- pkt(6)
	src <- pkt(7)

	sink.mu.Lock()
	seqs := append([]uint16(nil), sink.seqs...)
	sink.mu.Unlock()
	var sawResumed bool
	for _, seq := range seqs {
		if seq == 3 || seq == 4 {
			t.Fatalf("muted packet %d forwarded: %v", seq, seqs)
		}
		if seq == 6 {
			sawResumed = true
		}
	}
	if !sawResumed {
		t.Fatalf("forwarding did not resume: %v", seqs)
	}

	close(src)
	select {
	case <-relay.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("relay did not stop when source ended")
	}
}

func TestWriteErrorDropsOutTrack(t *testing.T) {
	m := NewManager()
	src := make(chanSource)
	bad := &recordSink{err: errors.New("closed")}
	good := &recordSink{}
	relay := m.Start(context.Background(), "bob", src)
	m.AddSubscriber("bob", "x", bad)
	m.AddSubscriber("bob", "y", good)

	src <- pkt(1)
	src <- pkt(2)
	eventually(t, func() bool { return good.count() == 2 })
	if _, ok := relay.outTrack("x"); ok {
		t.Fatalf("failing out track kept")
	}
	m.StopAll()
	close(src)
}

func TestStartReplacesRelay(t *testing.T) {
	m := NewManager()
	first := m.Start(context.Background(), "bob", make(chanSource))
	second := m.Start(context.Background(), "bob", make(chanSource))
	if first == second {
		t.Fatalf("relay not replaced")
	}
	if !m.Active("bob") {
		t.Fatalf("bob inactive")
	}
	if peers := m.Peers(); len(peers) != 1 || peers[0] != "bob" {
		t.Fatalf("peers = %v", peers)
	}
	m.Stop("bob")
	if m.Active("bob") {
		t.Fatalf("bob still active after stop")
	}
	if m.AddSubscriber("bob", "x", &recordSink{}) {
		t.Fatalf("subscribed to a stopped relay")
	}
}
