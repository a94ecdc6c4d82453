package http

import (
	"github.com/dkeye/peernode/internal/app/calls"
	"github.com/dkeye/peernode/internal/app/data"
)

type statusView struct {
	ID        string   `json:"id"`
	PeerReady bool     `json:"peer_ready"`
	HostReady bool     `json:"host_ready"`
	Error     string   `json:"error,omitempty"`
	Relays    []string `json:"relays,omitempty"`
}

type callView struct {
	Peer         string `json:"peer"`
	Direction    string `json:"direction"`
	Answered     bool   `json:"answered"`
	RemoteStream string `json:"remote_stream,omitempty"`
}

type dataView struct {
	Peer         string `json:"peer"`
	ConnectionID string `json:"connection_id"`
}

// Event is one frame on the events websocket.
type Event struct {
	Type         string      `json:"type"`
	Status       *statusView `json:"status,omitempty"`
	Calls        []callView  `json:"calls,omitempty"`
	Data         []dataView  `json:"data,omitempty"`
	Peer         string      `json:"peer,omitempty"`
	ConnectionID string      `json:"connection_id,omitempty"`
	Payload      any         `json:"payload,omitempty"`
	Raw          []byte      `json:"raw,omitempty"`
}

func callViews(ss []calls.Session) []callView {
	out := make([]callView, 0, len(ss))
	for _, s := range ss {
		v := callView{Peer: s.Peer, Direction: s.Direction.String(), Answered: s.Answered}
		if s.Remote != nil {
			v.RemoteStream = s.Remote.ID()
		}
		out = append(out, v)
	}
	return out
}

func dataViews(ss []data.Session) []dataView {
	out := make([]dataView, 0, len(ss))
	for _, s := range ss {
		out = append(out, dataView{Peer: s.Peer, ConnectionID: s.ConnectionID})
	}
	return out
}
