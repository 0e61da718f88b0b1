// internal/command/guard_test.go
package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// acquired returns a channel that has been claimed for one command.
func acquired(t *testing.T) *Channel {
	t.Helper()
	ch := NewChannel()
	require.NoError(t, ch.Acquire(context.Background()))
	return ch
}

func TestGuard(t *testing.T) {
	t.Run("armed guard completes on release", func(t *testing.T) {
		ch := acquired(t)
		g := NewGuard(ch)
		assert.Equal(t, Armed, g.State())

		assert.True(t, g.Release())
		assert.False(t, ch.Busy())
		assert.Equal(t, Disarmed, g.State())
		assert.False(t, g.Release(), "a second release must not complete again")
		assert.Equal(t, int64(1), ch.Completions())
	})

	t.Run("disarmed guard leaves the channel busy", func(t *testing.T) {
		ch := acquired(t)
		g := NewGuard(ch)
		g.Disarm()

		assert.False(t, g.Release())
		assert.True(t, ch.Busy())
	})

	t.Run("transferred completion fires once through the pending slot", func(t *testing.T) {
		ch := acquired(t)
		var slot PendingNavigation
		g := NewGuard(ch)

		require.NoError(t, g.TransferTo(&slot))
		assert.Equal(t, Transferred, g.State())
		assert.True(t, slot.Active())

		assert.False(t, g.Release())
		assert.True(t, ch.Busy(), "transferred command must wait for navigation")

		assert.True(t, slot.Resolve(func(o *Outputs) { o.SetError(Errorf(NavigationTimeout, "page load timed out")) }))
		assert.False(t, slot.Active())
		assert.False(t, ch.Busy())
		assert.Equal(t, NavigationTimeout, ch.Outputs.Status)

		assert.False(t, slot.Resolve(nil), "an empty slot resolves nothing")
		assert.Equal(t, int64(1), ch.Completions())
	})

	t.Run("transfer happens at most once per command", func(t *testing.T) {
		ch := acquired(t)
		var slot PendingNavigation
		g := NewGuard(ch)

		require.NoError(t, g.TransferTo(&slot))
		g.Arm()
		assert.False(t, slot.Active(), "re-arming reclaims the slot")

		assert.ErrorIs(t, g.TransferTo(&slot), ErrAlreadyTransferred)
		assert.True(t, g.Release())
	})

	t.Run("transfer after release is refused", func(t *testing.T) {
		ch := acquired(t)
		var slot PendingNavigation
		g := NewGuard(ch)
		g.Release()

		assert.ErrorIs(t, g.TransferTo(&slot), ErrGuardDisarmed)
		assert.False(t, slot.Active())
	})

	t.Run("occupied slot refuses a second command", func(t *testing.T) {
		var slot PendingNavigation
		first := acquired(t)
		require.NoError(t, NewGuard(first).TransferTo(&slot))

		second := acquired(t)
		g := NewGuard(second)
		assert.ErrorIs(t, g.TransferTo(&slot), ErrNavigationPending)
		assert.Equal(t, Armed, g.State())
		assert.True(t, g.Release())

		assert.Same(t, first, slot.Take())
		first.Complete()
	})
}

func TestGuardState_String(t *testing.T) {
	assert.Equal(t, "armed", Armed.String())
	assert.Equal(t, "disarmed", Disarmed.String())
	assert.Equal(t, "transferred", Transferred.String())
	assert.Equal(t, "unknown", GuardState(42).String())
}
