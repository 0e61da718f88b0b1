// internal/browser/context_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCombineContext(t *testing.T) {
	t.Run("OpCancelStopsCombinedOnly", func(t *testing.T) {
		target, cancelTarget := context.WithCancel(context.Background())
		defer cancelTarget()
		op, cancelOp := context.WithCancel(context.Background())

		combined, cancel := combineContext(target, op)
		defer cancel()
		cancelOp()

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context outlived op")
		}
		assert.NoError(t, target.Err())
	})

	t.Run("TargetCancelPropagates", func(t *testing.T) {
		target, cancelTarget := context.WithCancel(context.Background())
		combined, cancel := combineContext(target, context.Background())
		defer cancel()
		cancelTarget()
		<-combined.Done()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("CarriesTargetValues", func(t *testing.T) {
		type key struct{}
		target := context.WithValue(context.Background(), key{}, "executor")
		combined, cancel := combineContext(target, context.Background())
		defer cancel()
		assert.Equal(t, "executor", combined.Value(key{}))
	})

	t.Run("CancelLeavesTargetAlive", func(t *testing.T) {
		target, cancelTarget := context.WithCancel(context.Background())
		defer cancelTarget()
		_, cancel := combineContext(target, context.Background())
		cancel()
		assert.NoError(t, target.Err())
	})
}
