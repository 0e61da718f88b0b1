// internal/settle/settle.go
package settle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrTimeout is returned by Await when the probe never reported settled
// within the allotted time.
var ErrTimeout = errors.New("page did not finish loading in time")

const (
	DefaultTimeout  = 300 * time.Second
	DefaultInterval = 100 * time.Millisecond
)

// ReadyComplete is the document.readyState of a fully loaded document.
const ReadyComplete = "complete"

// Frame is the load state of one document in the frame tree. Path is the
// dot-separated index path from the top document; empty means top.
type Frame struct {
	Path       string
	ReadyState string
	// Loading is true while the browser reports the frame as navigating.
	Loading bool
}

// Settled reports whether every frame has finished loading. An empty tree
// is not settled; there is always at least the top document.
func Settled(frames []Frame) bool {
	if len(frames) == 0 {
		return false
	}
	for _, f := range frames {
		if f.Loading || f.ReadyState != ReadyComplete {
			return false
		}
	}
	return true
}

// Pending returns the paths of the frames still loading.
func Pending(frames []Frame) []string {
	var out []string
	for _, f := range frames {
		if f.Loading || f.ReadyState != ReadyComplete {
			out = append(out, f.Path)
		}
	}
	return out
}

// Options bound a settle wait.
type Options struct {
	// Timeout caps the whole wait. Zero means DefaultTimeout; a wait is never
	// unbounded.
	Timeout time.Duration
	// Interval paces successive probes.
	Interval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	return o
}

// Probe inspects the page and reports whether it has settled.
type Probe func(ctx context.Context) (bool, error)

// FrameProbe adapts a frame-tree snapshot function into a Probe. Snapshot
// errors count as not settled: documents being torn down mid-navigation fail
// to evaluate, and the timeout still bounds the wait.
func FrameProbe(snapshot func(ctx context.Context) ([]Frame, error)) Probe {
	return func(ctx context.Context) (bool, error) {
		frames, err := snapshot(ctx)
		if err != nil {
			return false, nil
		}
		return Settled(frames), nil
	}
}

// Await calls probe until it reports settled, it fails, or the timeout
// elapses. The first probe runs immediately and the last one runs at the
// deadline, however the interval divides the timeout. Expiry of the timeout
// yields ErrTimeout; cancellation of ctx itself is returned unwrapped.
func Await(ctx context.Context, opts Options, probe Probe) error {
	opts = opts.withDefaults()

	deadline := time.Now().Add(opts.Timeout)
	// Probes get one extra interval so the one issued at the deadline can
	// still complete.
	probeCtx, cancel := context.WithDeadline(ctx, deadline.Add(opts.Interval))
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(opts.Interval), 1)
	for {
		delay := limiter.Reserve().Delay()
		if remaining := time.Until(deadline); delay > remaining {
			delay = max(remaining, 0)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}

		ok, err := probe(probeCtx)
		if err != nil {
			if probeCtx.Err() != nil {
				return expired(ctx, opts.Timeout)
			}
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return expired(ctx, opts.Timeout)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func expired(parent context.Context, timeout time.Duration) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w (after %s)", ErrTimeout, timeout)
}
