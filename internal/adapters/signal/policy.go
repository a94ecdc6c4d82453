package signal

// BackpressureAction is what the server does with a peer whose send queue
// is full.
type BackpressureAction int

const (
	DropMessage BackpressureAction = iota
	KickPeer
)

type Policy interface {
	OnBackpressure(peer string, msg Message) BackpressureAction
}

// SimplePolicy kicks slow peers. Their pending answers are stale anyway.
type SimplePolicy struct{}

func (SimplePolicy) OnBackpressure(string, Message) BackpressureAction { return KickPeer }

// DropPolicy keeps slow peers connected and discards what does not fit.
type DropPolicy struct{}

func (DropPolicy) OnBackpressure(string, Message) BackpressureAction { return DropMessage }
