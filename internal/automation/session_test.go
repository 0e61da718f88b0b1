// internal/automation/session_test.go
package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-driver/internal/command"
)

func TestOpen(t *testing.T) {
	t.Run("reports capabilities", func(t *testing.T) {
		s := openSession(t, newFakeBrowser(), func(o *Options) {
			o.ID = "fixed-id"
			o.Desired = map[string]any{"browserName": "firefox", "acceptSslCerts": true}
		})

		assert.Equal(t, "fixed-id", s.ID())
		assert.False(t, s.CreatedAt().IsZero())
		caps := s.Capabilities()
		assert.Equal(t, "chrome", caps["browserName"], "the driver's own keys win")
		assert.Equal(t, "fake/1.0", caps["version"])
		assert.Equal(t, true, caps["acceptSslCerts"])

		caps["browserName"] = "mutated"
		assert.Equal(t, "chrome", s.Capabilities()["browserName"], "callers get a copy")

		out := run(t, s, command.GetSessionCapabilities, nil)
		assert.Equal(t, "chrome", out.Object.(map[string]any)["browserName"])
	})

	t.Run("launch failure is session not created", func(t *testing.T) {
		boom := errors.New("chrome not found")
		_, err := Open(context.Background(), Options{
			Launcher: LauncherFunc(func(context.Context, Notify) (Browser, error) { return nil, boom }),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSessionNotCreated)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("missing launcher", func(t *testing.T) {
		_, err := Open(context.Background(), Options{})
		assert.ErrorIs(t, err, ErrSessionNotCreated)
	})

	t.Run("open gives up when its context ends", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, err := Open(ctx, Options{
			Launcher: LauncherFunc(func(ctx context.Context, _ Notify) (Browser, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSessionNotCreated)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("startup timeout bounds the launch", func(t *testing.T) {
		_, err := Open(context.Background(), Options{
			StartupTimeout: 20 * time.Millisecond,
			Launcher: LauncherFunc(func(ctx context.Context, _ Notify) (Browser, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}),
		})
		assert.ErrorIs(t, err, ErrSessionNotCreated)
	})
}

func TestClose(t *testing.T) {
	t.Run("idempotent and closes the browser once", func(t *testing.T) {
		fb := newFakeBrowser()
		s, err := Open(context.Background(), Options{Launcher: fb.launcher()})
		require.NoError(t, err)

		require.NoError(t, s.Close(context.Background()))
		require.NoError(t, s.Close(context.Background()))
		<-s.Done()

		fb.mu.Lock()
		defer fb.mu.Unlock()
		assert.True(t, fb.closed)
		assert.Equal(t, 1, fb.closeCount)
	})

	t.Run("commands after close report no such session", func(t *testing.T) {
		s, err := Open(context.Background(), Options{Launcher: newFakeBrowser().launcher()})
		require.NoError(t, err)
		require.NoError(t, s.Close(context.Background()))

		_, err = s.Execute(context.Background(), command.GetTitle, nil)
		require.Error(t, err)
		assert.Equal(t, command.NoSuchSession, command.AsError(err).Status)
		assert.ErrorIs(t, err, ErrSessionClosed)
	})

	t.Run("pending navigation is completed on close", func(t *testing.T) {
		fb := newFakeBrowser()
		fb.neverSettles = true
		s, err := Open(context.Background(), Options{Launcher: fb.launcher(), SettleInterval: 5 * time.Millisecond})
		require.NoError(t, err)

		result := make(chan command.Outputs, 1)
		go func() {
			out, err := s.Execute(context.Background(), command.Get, navigate("http://slow.test"))
			assert.NoError(t, err)
			result <- out
		}()

		require.Eventually(t, func() bool { return s.worker.pending.Active() }, time.Second, 5*time.Millisecond)
		require.NoError(t, s.Close(context.Background()))

		select {
		case out := <-result:
			assert.Equal(t, command.UnhandledNative, out.Status)
			assert.Contains(t, out.Message, ErrSessionClosed.Error())
		case <-time.After(time.Second):
			t.Fatal("deferred command was left hanging after close")
		}
	})
}

func TestElementRegistry(t *testing.T) {
	r := newElementRegistry()
	a := r.register("h1", "w1")
	assert.Equal(t, a, r.register("h1", "w1"), "same handle, same id")
	b := r.register("h2", "w1")
	assert.NotEqual(t, a, b)

	h, err := r.resolve(a, "w1")
	require.NoError(t, err)
	assert.Equal(t, Handle("h1"), h)

	_, err = r.resolve(a, "w2")
	assert.Equal(t, command.StaleElement, command.AsError(err).Status, "ids do not cross windows")

	r.invalidate()
	_, err = r.resolve(a, "w1")
	assert.Equal(t, command.StaleElement, command.AsError(err).Status)
	assert.NotEqual(t, a, r.register("h1", "w1"), "a new document mints new ids")
	assert.Equal(t, 3, r.Len())

	_, err = r.resolve("", "w1")
	assert.Equal(t, command.InvalidArgument, command.AsError(err).Status)
}

func TestStateHelpers(t *testing.T) {
	sp, err := ParseSpeed(" medium ")
	require.NoError(t, err)
	assert.Equal(t, SpeedMedium, sp)
	assert.Equal(t, time.Duration(0), SpeedFast.KeyDelay())

	var to Timeouts
	require.NoError(t, to.Set("pageLoad", time.Second))
	require.NoError(t, to.Set(TimeoutScript, 2*time.Second))
	assert.Equal(t, Timeouts{PageLoad: time.Second, Script: 2 * time.Second}, to)

	assert.Equal(t, "", parentFrame(""))
	assert.Equal(t, "", parentFrame("0"))
	assert.Equal(t, "0.2", parentFrame("0.2.1"))
}
