package util

import (
	"sync"
	"sync/atomic"
)

// Shutdown is a broadcast flag that is set exactly once. Every long running
// loop polls IsSet or selects on Done.
type Shutdown struct {
	once sync.Once
	set  atomic.Bool
	done chan struct{}
}

func NewShutdown() *Shutdown {
	return &Shutdown{done: make(chan struct{})}
}

// Trigger sets the flag. Only the first call has an effect; it reports
// whether this call was the one that set it.
func (s *Shutdown) Trigger() bool {
	fired := false
	s.once.Do(func() {
		s.set.Store(true)
		close(s.done)
		fired = true
	})
	return fired
}

func (s *Shutdown) IsSet() bool {
	return s.set.Load()
}

// Done is closed once Trigger has been called.
func (s *Shutdown) Done() <-chan struct{} {
	return s.done
}
