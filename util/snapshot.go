package util

import (
	"sync/atomic"
)

type snapshot[T any] struct {
	value   T
	version uint64
	changed chan struct{}
}

// Snapshot publishes the latest value of a single writer to any number of
// readers. Readers always get a complete value and never block the writer.
// Publish must only be called from one goroutine.
type Snapshot[T any] struct {
	current atomic.Pointer[snapshot[T]]
}

// NewSnapshot creates a Snapshot holding initial at version 0.
func NewSnapshot[T any](initial T) *Snapshot[T] {
	s := &Snapshot[T]{}
	s.current.Store(&snapshot[T]{value: initial, changed: make(chan struct{})})
	return s
}

// Publish replaces the value and wakes up every goroutine waiting in Watch.
func (s *Snapshot[T]) Publish(value T) {
	old := s.current.Load()
	s.current.Store(&snapshot[T]{
		value:   value,
		version: old.version + 1,
		changed: make(chan struct{}),
	})
	close(old.changed)
}

// Update publishes the result of fn applied to the current value.
func (s *Snapshot[T]) Update(fn func(T) T) {
	s.Publish(fn(s.current.Load().value))
}

// Load returns the latest published value.
func (s *Snapshot[T]) Load() T {
	return s.current.Load().value
}

// Version counts the publications so far.
func (s *Snapshot[T]) Version() uint64 {
	return s.current.Load().version
}

// Watch returns the latest value together with a channel that is closed as
// soon as a newer value has been published.
func (s *Snapshot[T]) Watch() (T, <-chan struct{}) {
	cur := s.current.Load()
	return cur.value, cur.changed
}
