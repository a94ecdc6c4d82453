package signal

import (
	"encoding/json"
	"errors"
)

const (
	TypeOpen   = "open"
	TypeOffer  = "offer"
	TypeAnswer = "answer"
	TypeLeave  = "leave"
	TypeError  = "error"
	TypePing   = "ping"
	TypePong   = "pong"
)

const (
	KindMedia = "media"
	KindData  = "data"
)

// Error codes carried in Message.Error.
const (
	CodeUnavailableID   = "unavailable-id"
	CodeInvalidID       = "invalid-id"
	CodePeerUnavailable = "peer-unavailable"
	CodeRateLimited     = "rate-limited"
)

var (
	ErrUnavailableID = errors.New("peer id is taken")
	ErrInvalidID     = errors.New("peer id is invalid")
	ErrClosed        = errors.New("signal connection closed")
	ErrBackpressure  = errors.New("backpressure")
)

// Message is the signaling envelope. Src is stamped by the server.
type Message struct {
	Type         string `json:"type"`
	Src          string `json:"src,omitempty"`
	Dst          string `json:"dst,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
	Kind         string `json:"kind,omitempty"`
	SDP          string `json:"sdp,omitempty"`
	Label        string `json:"label,omitempty"`
	Error        string `json:"error,omitempty"`
	ID           string `json:"id,omitempty"`
}

func (m Message) encode() ([]byte, error) { return json.Marshal(m) }

func decode(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}

// codeError maps a server error code to the client side sentinel.
func codeError(code string) error {
	switch code {
	case CodeUnavailableID:
		return ErrUnavailableID
	case CodeInvalidID:
		return ErrInvalidID
	default:
		return errors.New(code)
	}
}
