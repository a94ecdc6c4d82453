package calls

import (
	"context"
	"sync"

	"github.com/dkeye/peernode/internal/core"
)

// Pending is the deferred result of MakeCall and AnswerCall. It settles
// exactly once: with the session carrying the remote stream, or with an
// error (*core.TransportError, core.ErrCancelled).
type Pending struct {
	done chan struct{}

	mu        sync.Mutex
	session   Session
	err       error
	settled   bool
	followers []*Pending
}

func newPending(s Session) *Pending {
	return &Pending{session: s, done: make(chan struct{})}
}

func (p *Pending) Peer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session.Peer
}

// Done is closed once the operation settled.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the operation settles or ctx is done.
func (p *Pending) Wait(ctx context.Context) (Session, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.session, p.err
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}
}

// Err returns the failure, if the operation settled with one.
func (p *Pending) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Settled reports whether Done is closed.
func (p *Pending) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled
}

func (p *Pending) markAnswered() {
	p.mu.Lock()
	p.session.Answered = true
	p.mu.Unlock()
}

func (p *Pending) resolve(remote core.MediaStream) (Session, bool) {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return Session{}, false
	}
	p.session.Remote = remote
	res := p.session
	followers := p.finishLocked()
	p.mu.Unlock()

	for _, f := range followers {
		f.resolve(remote)
	}
	return res, true
}

func (p *Pending) reject(err error) bool {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return false
	}
	p.err = err
	followers := p.finishLocked()
	p.mu.Unlock()

	for _, f := range followers {
		f.reject(err)
	}
	return true
}

func (p *Pending) finishLocked() []*Pending {
	p.settled = true
	close(p.done)
	followers := p.followers
	p.followers = nil
	return followers
}

// follow makes old settle together with p. Used when a session's handlers
// are rewired while an earlier wait is still outstanding.
func (p *Pending) follow(old *Pending) {
	if old == nil || old == p {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.followers = append(p.followers, old)
}
