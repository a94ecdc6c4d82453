package echo

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// Sink receives forwarded packets. *webrtc.TrackLocalStaticRTP is one.
type Sink interface {
	WriteRTP(p *rtp.Packet) error
}

// OutTrack is one destination of a relay.
type OutTrack struct {
	Sink  Sink
	state atomic.Int32
}

func NewOutTrack(sink Sink) *OutTrack {
	return &OutTrack{Sink: sink}
}

func (ot *OutTrack) State() TrackState { return TrackState(ot.state.Load()) }

func (ot *OutTrack) MarkOk()     { ot.state.Store(int32(TrackStateOk)) }
func (ot *OutTrack) MarkMuted()  { ot.state.Store(int32(TrackStateMuted)) }
func (ot *OutTrack) MarkDelete() { ot.state.Store(int32(TrackStateDelete)) }
