package app

import "sync"

// Value is an observable slot. Set publishes only when the value changes.
type Value[T comparable] struct {
	mu     sync.Mutex
	v      T
	subs   map[uint64]func(T)
	nextID uint64
}

func NewValue[T comparable](initial T) *Value[T] {
	return &Value[T]{v: initial, subs: make(map[uint64]func(T))}
}

func (s *Value[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

// Set stores v and notifies subscribers outside the lock.
func (s *Value[T]) Set(v T) {
	s.mu.Lock()
	if s.v == v {
		s.mu.Unlock()
		return
	}
	s.v = v
	subs := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}

func (s *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
