// Package domain contains identifiers without logic, just meta-data
package domain

import (
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxPeerIDLen = 64

	DataConnectionPrefix  = "dc_"
	MediaConnectionPrefix = "mc_"
)

var (
	ErrPeerIDEmpty   = errors.New("peer id empty")
	ErrPeerIDTooLong = errors.New("peer id too long")
	ErrPeerIDInvalid = errors.New("peer id invalid")
)

var peerIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+(?:[ _-][A-Za-z0-9]+)*$`)

type PeerID string

// NewPeerID returns a random identifier for a peer that did not pick one.
func NewPeerID() PeerID {
	return PeerID(uuid.NewString())
}

// ParsePeerID validates a user supplied identifier.
func ParsePeerID(raw string) (PeerID, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 0 {
		return "", ErrPeerIDEmpty
	}
	if len(raw) > MaxPeerIDLen {
		return "", ErrPeerIDTooLong
	}
	if !peerIDPattern.MatchString(raw) {
		return "", ErrPeerIDInvalid
	}
	return PeerID(raw), nil
}

func (p PeerID) String() string { return string(p) }

// NewConnectionID returns a connection instance identifier for a data channel.
func NewConnectionID() string {
	return DataConnectionPrefix + uuid.NewString()
}

// NewCallID returns a connection instance identifier for a media call.
func NewCallID() string {
	return MediaConnectionPrefix + uuid.NewString()
}

// IsDataConnection reports whether id was issued by NewConnectionID.
func IsDataConnection(id string) bool {
	return strings.HasPrefix(id, DataConnectionPrefix)
}
