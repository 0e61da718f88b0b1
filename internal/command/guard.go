// internal/command/guard.go
package command

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrAlreadyTransferred is returned when a command tries to hand its
	// completion to a pending navigation more than once.
	ErrAlreadyTransferred = errors.New("completion already transferred for this command")
	// ErrGuardDisarmed is returned when a transfer is attempted after the
	// guard has fired or been disarmed.
	ErrGuardDisarmed = errors.New("completion guard is disarmed")
	// ErrNavigationPending is returned when another command still owns the
	// pending navigation slot.
	ErrNavigationPending = errors.New("another navigation is already pending")
)

// GuardState is the state of a Guard.
type GuardState int

const (
	// Armed guards complete their channel on Release.
	Armed GuardState = iota
	// Disarmed guards do nothing on Release.
	Disarmed
	// Transferred guards have handed their channel to a PendingNavigation.
	Transferred
)

func (s GuardState) String() string {
	switch s {
	case Armed:
		return "armed"
	case Disarmed:
		return "disarmed"
	case Transferred:
		return "transferred"
	default:
		return "unknown"
	}
}

// PendingNavigation holds the channel of a command whose completion waits
// for a navigation to settle. The zero value is empty.
type PendingNavigation struct {
	ch atomic.Pointer[Channel]
}

// Active reports whether a command is waiting on navigation.
func (p *PendingNavigation) Active() bool { return p.ch.Load() != nil }

// Take empties the slot and returns the channel it held, if any.
func (p *PendingNavigation) Take() *Channel { return p.ch.Swap(nil) }

// Resolve completes the pending command. write, if non-nil, runs against the
// command's outputs before completion. It reports whether a command was
// completed.
func (p *PendingNavigation) Resolve(write func(*Outputs)) bool {
	ch := p.Take()
	if ch == nil {
		return false
	}
	if write != nil {
		write(&ch.Outputs)
	}
	return ch.Complete()
}

// Guard completes a command's channel when the dispatcher releases it,
// unless ownership of the completion was transferred to a pending
// navigation. A Guard is used by a single goroutine.
type Guard struct {
	ch          *Channel
	state       GuardState
	slot        *PendingNavigation
	transferred bool
}

// NewGuard returns an Armed guard bound to ch.
func NewGuard(ch *Channel) *Guard {
	return &Guard{ch: ch, state: Armed}
}

// State returns the current state.
func (g *Guard) State() GuardState { return g.state }

// TransferTo hands completion to slot. It may succeed at most once per
// command.
func (g *Guard) TransferTo(slot *PendingNavigation) error {
	if g.transferred {
		return ErrAlreadyTransferred
	}
	if g.state != Armed {
		return ErrGuardDisarmed
	}
	if !slot.ch.CompareAndSwap(nil, g.ch) {
		return ErrNavigationPending
	}
	g.slot = slot
	g.state = Transferred
	g.transferred = true
	return nil
}

// Arm cancels a transfer, reclaiming the channel from the pending slot, so
// that Release completes the command immediately.
func (g *Guard) Arm() {
	if g.state == Transferred && g.slot != nil {
		g.slot.ch.CompareAndSwap(g.ch, nil)
		g.slot = nil
	}
	g.state = Armed
}

// Disarm stops the guard from completing the channel.
func (g *Guard) Disarm() {
	if g.state == Armed {
		g.state = Disarmed
	}
}

// Release completes the channel if the guard is Armed. It reports whether
// the command was completed by this call.
func (g *Guard) Release() bool {
	if g.state != Armed {
		return false
	}
	g.state = Disarmed
	return g.ch.Complete()
}
