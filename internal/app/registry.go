package app

import (
	"slices"
	"sync"
)

// Registry is a threadsafe ordered collection that publishes an immutable
// snapshot to its subscribers after every mutation.
//
// Snapshots are delivered in mutation order. A subscriber may mutate the
// registry again; the nested snapshot is queued and delivered once the
// current round of subscribers returns.
type Registry[T any] struct {
	mu     sync.Mutex
	items  []T
	subs   map[uint64]func([]T)
	nextID uint64

	queue    [][]T
	draining bool
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		subs: make(map[uint64]func([]T)),
	}
}

// Add appends item. Dedup is the caller's policy.
func (r *Registry[T]) Add(item T) {
	r.mu.Lock()
	next := make([]T, 0, len(r.items)+1)
	next = append(next, r.items...)
	next = append(next, item)
	r.commitLocked(next)
}

// RemoveWhere drops every entry matching pred and returns how many were
// removed. Nothing is published when nothing matched.
func (r *Registry[T]) RemoveWhere(pred func(T) bool) int {
	r.mu.Lock()
	next := make([]T, 0, len(r.items))
	for _, it := range r.items {
		if !pred(it) {
			next = append(next, it)
		}
	}
	removed := len(r.items) - len(next)
	if removed == 0 {
		r.mu.Unlock()
		return 0
	}
	r.commitLocked(next)
	return removed
}

// ReplaceWhere swaps every entry matching pred with fn(entry).
func (r *Registry[T]) ReplaceWhere(pred func(T) bool, fn func(T) T) int {
	r.mu.Lock()
	var next []T
	replaced := 0
	for i, it := range r.items {
		if !pred(it) {
			continue
		}
		if next == nil {
			next = slices.Clone(r.items)
		}
		next[i] = fn(it)
		replaced++
	}
	if replaced == 0 {
		r.mu.Unlock()
		return 0
	}
	r.commitLocked(next)
	return replaced
}

// Update applies fn to a copy of the current sequence and stores the result
// atomically. Returning changed=false skips publication.
func (r *Registry[T]) Update(fn func(current []T) (next []T, changed bool)) bool {
	r.mu.Lock()
	next, changed := fn(slices.Clone(r.items))
	if !changed {
		r.mu.Unlock()
		return false
	}
	r.commitLocked(next)
	return true
}

// FindWhere returns the first entry matching pred.
func (r *Registry[T]) FindWhere(pred func(T) bool) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if pred(it) {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// Snapshot returns a copy of the current sequence.
func (r *Registry[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.items)
}

func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Subscribe registers fn for every future snapshot. The returned func
// removes the subscription and is safe to call more than once.
func (r *Registry[T]) Subscribe(fn func([]T)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// commitLocked stores next, queues its snapshot and drains the queue unless
// another goroutine (or an outer frame of this one) is already draining.
// Must be called with r.mu held; returns with it released.
func (r *Registry[T]) commitLocked(next []T) {
	r.items = next
	r.queue = append(r.queue, next)
	if r.draining {
		r.mu.Unlock()
		return
	}
	r.draining = true
	for len(r.queue) > 0 {
		snap := r.queue[0]
		r.queue = r.queue[1:]
		subs := make([]func([]T), 0, len(r.subs))
		for _, fn := range r.subs {
			subs = append(subs, fn)
		}
		r.mu.Unlock()
		for _, fn := range subs {
			fn(slices.Clone(snap))
		}
		r.mu.Lock()
	}
	r.queue = nil
	r.draining = false
	r.mu.Unlock()
}
