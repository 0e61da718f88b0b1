// internal/command/signal.go
package command

import (
	"context"
	"sync"
)

// Signal is a manual-reset event. Once set it stays set, releasing every
// current and future waiter, until Reset is called.
type Signal struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

// NewSignal returns a Signal in the signaled state.
func NewSignal() *Signal {
	ch := make(chan struct{})
	close(ch)
	return &Signal{ch: ch, set: true}
}

// Set moves the signal to the signaled state. It reports whether this call
// performed the unsignaled -> signaled transition.
func (s *Signal) Set() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return false
	}
	s.set = true
	close(s.ch)
	return true
}

// Reset moves the signal to the unsignaled state. It reports whether this
// call performed the signaled -> unsignaled transition.
func (s *Signal) Reset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return false
	}
	s.set = false
	s.ch = make(chan struct{})
	return true
}

// IsSet reports whether the signal is currently signaled.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Done returns a channel that is closed once the signal is set. The channel
// belongs to the current unsignaled period; a later Reset issues a new one.
func (s *Signal) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Wait blocks until the signal is set or ctx is done.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
