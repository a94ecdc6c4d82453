package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/peernode/internal/app/calls"
	"github.com/dkeye/peernode/internal/app/data"
	"github.com/dkeye/peernode/internal/app/peer"
	"github.com/dkeye/peernode/internal/core"
	"github.com/dkeye/peernode/internal/payload"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Controller serves the control API of one node.
type Controller struct {
	node  *peer.Node
	codec *payload.Codec
	hub   *hub

	// local returns the stream to send to peer when a call is made or answered.
	local func(peer string) (core.MediaStream, error)
	// settled is handed every call operation started through the API.
	settled func(*calls.Pending)
	// relays reports the echo relays for status, if any.
	relays func() []string

	unsubs []func()
}

type ControllerOptions struct {
	Codec   *payload.Codec
	Local   func(peer string) (core.MediaStream, error)
	Settled func(*calls.Pending)
	Relays  func() []string
}

func NewController(node *peer.Node, opts ControllerOptions) *Controller {
	ctl := &Controller{
		node:    node,
		codec:   opts.Codec,
		hub:     newHub(),
		local:   opts.Local,
		settled: opts.Settled,
		relays:  opts.Relays,
	}
	if ctl.settled == nil {
		ctl.settled = func(*calls.Pending) {}
	}

	ctl.unsubs = append(ctl.unsubs,
		node.Calls().Sessions().Subscribe(func(ss []calls.Session) {
			ctl.hub.publish(Event{Type: "calls", Calls: callViews(ss)})
		}),
		node.Data().Sessions().Subscribe(func(ss []data.Session) {
			// Inbound connections start without a handler.
			node.Data().UseDataStream(ctl.onData, "")
			ctl.hub.publish(Event{Type: "data_sessions", Data: dataViews(ss)})
		}),
		node.Err().Subscribe(func(error) { ctl.publishStatus() }),
		node.PeerReady().Subscribe(func(bool) { ctl.publishStatus() }),
		node.HostReady().Subscribe(func(bool) { ctl.publishStatus() }),
	)
	return ctl
}

// Close detaches from the node and drops every event subscriber.
func (ctl *Controller) Close() {
	for _, u := range ctl.unsubs {
		u()
	}
	ctl.hub.closeAll()
}

func (ctl *Controller) status() statusView {
	s := statusView{
		ID:        ctl.node.ID(),
		PeerReady: ctl.node.PeerReady().Get(),
		HostReady: ctl.node.HostReady().Get(),
	}
	if err := ctl.node.Err().Get(); err != nil {
		s.Error = err.Error()
	}
	if ctl.relays != nil {
		s.Relays = ctl.relays()
	}
	return s
}

func (ctl *Controller) publishStatus() {
	s := ctl.status()
	ctl.hub.publish(Event{Type: "status", Status: &s})
}

func (ctl *Controller) onData(msg data.Message) {
	ev := Event{Type: "data", Peer: msg.Peer, ConnectionID: msg.ConnectionID}
	var v any
	if err := ctl.codec.Decode(msg.Payload, &v); err != nil {
		log.Debug().Err(err).Str("module", "adapters.http").Str("peer", msg.Peer).Msg("payload not decodable, forwarding raw")
		ev.Raw = msg.Payload
	} else {
		ev.Payload = v
	}
	ctl.hub.publish(ev)
}

type peerRequest struct {
	Peer string `json:"peer"`
}

type sendRequest struct {
	Peer    string `json:"peer"`
	Payload any    `json:"payload"`
}

func (ctl *Controller) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, ctl.status())
}

func (ctl *Controller) listCalls(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"calls": callViews(ctl.node.Calls().Sessions().Snapshot())})
}

func (ctl *Controller) makeCall(c *gin.Context) {
	var req peerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Peer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid peer"})
		return
	}
	local, err := ctl.localFor(req.Peer)
	if err != nil {
		writeError(c, err)
		return
	}
	p, err := ctl.node.Calls().MakeCall(req.Peer, local)
	if err != nil {
		writeError(c, err)
		return
	}
	go ctl.settled(p)
	c.JSON(http.StatusAccepted, gin.H{"calling": req.Peer})
}

// answerCalls answers the call of one peer, or every unanswered call. Each
// call gets its own local stream.
func (ctl *Controller) answerCalls(c *gin.Context) {
	var req peerRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}

	var targets []string
	for _, s := range ctl.node.Calls().Sessions().Snapshot() {
		if (req.Peer == "" && !s.Answered) || (req.Peer != "" && s.Peer == req.Peer) {
			targets = append(targets, s.Peer)
		}
	}

	answering := make([]string, 0, len(targets))
	for _, target := range targets {
		local, err := ctl.localFor(target)
		if err != nil {
			writeError(c, err)
			return
		}
		for _, p := range ctl.node.Calls().AnswerCall(target, local) {
			answering = append(answering, p.Peer())
			go ctl.settled(p)
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"answering": answering})
}

func (ctl *Controller) hangUp(c *gin.Context) {
	ctl.node.Calls().DisconnectFrom(c.Param("peer"))
	c.Status(http.StatusNoContent)
}

func (ctl *Controller) hangUpAll(c *gin.Context) {
	ctl.node.Calls().DisconnectAll()
	c.Status(http.StatusNoContent)
}

func (ctl *Controller) listData(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": dataViews(ctl.node.Data().Sessions().Snapshot())})
}

func (ctl *Controller) connect(c *gin.Context) {
	var req peerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	h, err := ctl.node.Data().Connect(req.Peer, ctl.onData)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"peer": h.Peer(), "connection_id": h.ConnectionID()})
}

// send writes the encoded payload to one peer, or to all when peer is empty.
func (ctl *Controller) send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Payload == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing payload"})
		return
	}
	b, err := ctl.codec.Encode(req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Peer == "" {
		err = ctl.node.Data().SendAll(b)
	} else {
		err = ctl.node.Data().Send(req.Peer, b)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctl *Controller) disconnect(c *gin.Context) {
	ctl.node.Data().Disconnect(c.Param("peer"))
	c.Status(http.StatusNoContent)
}

func (ctl *Controller) disconnectAll(c *gin.Context) {
	ctl.node.Data().DisconnectAll()
	c.Status(http.StatusNoContent)
}

func (ctl *Controller) events(c *gin.Context) {
	s := ctl.status()
	ctl.hub.serve(c,
		Event{Type: "status", Status: &s},
		Event{Type: "calls", Calls: callViews(ctl.node.Calls().Sessions().Snapshot())},
		Event{Type: "data_sessions", Data: dataViews(ctl.node.Data().Sessions().Snapshot())},
	)
}

func (ctl *Controller) localFor(peer string) (core.MediaStream, error) {
	if ctl.local == nil {
		return nil, errors.New("no local media configured")
	}
	return ctl.local(peer)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrTransport):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
