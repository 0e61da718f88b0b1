// internal/shutdown/event_test.go
package shutdown

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEventPath(t *testing.T) {
	p := EventPath(4242)
	assert.Equal(t, os.TempDir(), filepath.Dir(p))
	assert.Equal(t, "scalpel-driver-shutdown-"+strconv.Itoa(4242), filepath.Base(p))
	assert.NotEqual(t, EventPath(1), EventPath(2))
}

func TestWatcher_Fires(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event")
	w, err := Watch(context.Background(), path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer w.Close()

	select {
	case <-w.Fired():
		t.Fatal("fired before the event was raised")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, Trigger(path))
	select {
	case <-w.Fired():
	case <-time.After(5 * time.Second):
		t.Fatal("event was not observed")
	}

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond, "event file is consumed")

	// Raising it again is harmless.
	require.NoError(t, Trigger(path))
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := Watch(context.Background(), filepath.Join(dir, "event"), nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "event-other"), []byte("x"), 0o600))
	select {
	case <-w.Fired():
		t.Fatal("fired for an unrelated file")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_RemovesStaleEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event")
	require.NoError(t, Trigger(path))

	w, err := Watch(context.Background(), path, nil)
	require.NoError(t, err)
	defer w.Close()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	select {
	case <-w.Fired():
		t.Fatal("a stale file must not fire the new watcher")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatcher_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w, err := Watch(ctx, filepath.Join(t.TempDir(), "event"), nil)
	require.NoError(t, err)

	cancel()
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not exit")
	}
	assert.NoError(t, w.Close())
}

func TestWatch_MissingDirectory(t *testing.T) {
	_, err := Watch(context.Background(), filepath.Join(t.TempDir(), "absent", "event"), nil)
	assert.Error(t, err)
}
