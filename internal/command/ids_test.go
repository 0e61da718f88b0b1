// internal/command/ids_test.go
package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	ids := All()
	require.Len(t, ids, int(numIDs)-1)

	names := make(map[string]ID, len(ids))
	for _, id := range ids {
		spec := id.Spec()
		assert.True(t, id.Valid())
		assert.NotEmpty(t, spec.Name, "command %d has no name", id)
		assert.NotEmpty(t, spec.Group, "command %s has no group", spec.Name)
		if prev, dup := names[spec.Name]; dup {
			t.Errorf("name %q used by both %d and %d", spec.Name, prev, id)
		}
		names[spec.Name] = id
	}

	assert.False(t, Invalid.Valid())
	assert.False(t, numIDs.Valid())
	assert.Equal(t, "invalid", ID(-3).String())
	assert.True(t, NewSession.Spec().Lifecycle)
	assert.True(t, Quit.Spec().Lifecycle)
	assert.False(t, Get.Spec().Lifecycle)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, 7, NoSuchElement.Code())
	assert.Equal(t, "no such element", NoSuchElement.String())
	assert.Equal(t, http.StatusNotFound, NoSuchSession.HTTPStatus())

	assert.Equal(t, 9, UnknownMethod.Code())
	assert.Equal(t, "unknown method", UnknownMethod.String())
	assert.Equal(t, http.StatusNotImplemented, UnknownMethod.HTTPStatus())

	// Unregistered statuses report as unhandled.
	assert.Equal(t, 13, Status(999).Code())
}

func TestAsError(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, AsError(nil))
	})

	t.Run("wrapped command errors pass through", func(t *testing.T) {
		inner := Errorf(StaleElement, "element %s is gone", "e7")
		got := AsError(fmt.Errorf("click: %w", inner))
		assert.Same(t, inner, got)
	})

	t.Run("deadline maps to navigation timeout", func(t *testing.T) {
		got := AsError(fmt.Errorf("settle: %w", context.DeadlineExceeded))
		assert.Equal(t, NavigationTimeout, got.Status)
	})

	t.Run("anything else is unhandled", func(t *testing.T) {
		got := AsError(errors.New("boom"))
		assert.Equal(t, UnhandledNative, got.Status)
		assert.Equal(t, "boom", got.Message)
	})

	t.Run("errorf keeps the cause reachable", func(t *testing.T) {
		cause := errors.New("net down")
		err := Errorf(UnhandledNative, "navigate: %w", cause)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "unknown error: navigate: net down", err.Error())
	})
}
