package rtc

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// LocalStream is a set of local tracks sent on a call.
type LocalStream struct {
	id     string
	tracks []webrtc.TrackLocal
}

func NewLocalStream(id string, tracks ...webrtc.TrackLocal) *LocalStream {
	return &LocalStream{id: id, tracks: tracks}
}

func (s *LocalStream) ID() string                  { return s.id }
func (s *LocalStream) Tracks() []webrtc.TrackLocal { return s.tracks }

// NewEchoStream returns a stream with one opus track that callers can
// write RTP into, along with that track.
func NewEchoStream() (*LocalStream, *webrtc.TrackLocalStaticRTP, error) {
	id := "echo-" + uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("echo track: %w", err)
	}
	return NewLocalStream(id, track), track, nil
}

// RemoteStream groups the tracks a peer sent under one stream id.
type RemoteStream struct {
	id string

	mu     sync.Mutex
	tracks []*webrtc.TrackRemote
}

func newRemoteStream(id string) *RemoteStream { return &RemoteStream{id: id} }

func (s *RemoteStream) ID() string { return s.id }

func (s *RemoteStream) add(t *webrtc.TrackRemote) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

func (s *RemoteStream) Tracks() []*webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*webrtc.TrackRemote, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Audio returns the first audio track of the stream.
func (s *RemoteStream) Audio() (*webrtc.TrackRemote, bool) {
	for _, t := range s.Tracks() {
		if t.Kind() == webrtc.RTPCodecTypeAudio {
			return t, true
		}
	}
	return nil, false
}
