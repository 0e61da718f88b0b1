// internal/automation/worker.go
package automation

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-driver/internal/command"
	"github.com/xkilldash9x/scalpel-driver/internal/settle"
)

const defaultStartupTimeout = 60 * time.Second

// Worker owns one browser and executes commands against it, one at a time,
// on a single goroutine locked to its OS thread. All fields below the
// channel block are touched only from that goroutine.
type Worker struct {
	ctx      context.Context
	session  *Session
	logger   *zap.Logger
	observer Observer
	launcher Launcher

	ch       *command.Channel
	commands <-chan command.ID
	stop     <-chan struct{}
	// nav carries coalesced "the page changed" self-messages posted by the
	// browser's event hook.
	nav chan struct{}
	// documents counts top-level documents the browser has started loading.
	// The event hook increments it; the worker compares it with seenDocuments
	// before each command.
	documents     atomic.Uint64
	seenDocuments uint64

	browser        Browser
	desired        map[string]any
	capabilities   map[string]any
	startupTimeout time.Duration
	settleInterval time.Duration

	framePath string
	timeouts  Timeouts
	speed     Speed
	elements  *elementRegistry

	// Deferred navigation. pending holds the channel of a command waiting
	// for its navigation to settle.
	pending    command.PendingNavigation
	navCommand command.ID
	navStart   time.Time
	navExpires time.Time
	navTicker  *time.Ticker
	// polling stops the settle routine from re-entering itself.
	polling bool
}

func newWorker(ctx context.Context, s *Session, opts Options) *Worker {
	startup := opts.StartupTimeout
	if startup <= 0 {
		startup = defaultStartupTimeout
	}
	interval := opts.SettleInterval
	if interval <= 0 {
		interval = settle.DefaultInterval
	}
	timeouts := opts.Timeouts
	if timeouts.PageLoad <= 0 {
		timeouts.PageLoad = settle.DefaultTimeout
	}
	return &Worker{
		ctx:            ctx,
		session:        s,
		logger:         s.logger.Named("worker"),
		observer:       opts.Observer,
		launcher:       opts.Launcher,
		ch:             s.ch,
		commands:       s.commands,
		stop:           s.stop,
		nav:            make(chan struct{}, 1),
		desired:        opts.Desired,
		startupTimeout: startup,
		settleInterval: interval,
		timeouts:       timeouts,
		speed:          SpeedFast,
		elements:       newElementRegistry(),
	}
}

// run is the worker goroutine. It reports start-up through started exactly
// once and closes the session's done channel on exit.
func (w *Worker) run(started chan<- startResult) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.session.done)

	if err := w.start(); err != nil {
		w.logger.Error("Failed to start browser.", zap.Error(err))
		started <- startResult{err: err}
		return
	}
	defer w.shutdown()

	if w.ctx.Err() != nil {
		started <- startResult{err: w.ctx.Err()}
		return
	}
	started <- startResult{caps: w.capabilities}
	w.loop()
}

func (w *Worker) start() error {
	launchCtx, cancel := context.WithTimeout(w.ctx, w.startupTimeout)
	defer cancel()

	b, err := w.launcher.Launch(launchCtx, w.notify)
	if err != nil {
		return err
	}
	w.browser = b

	version, err := b.Version(launchCtx)
	if err != nil {
		w.logger.Debug("Could not read browser version.", zap.Error(err))
	}
	w.capabilities = buildCapabilities(w.desired, version, w.timeouts)
	return nil
}

func (w *Worker) loop() {
	w.logger.Debug("Worker loop started.")
	for {
		var tick <-chan time.Time
		if w.navTicker != nil {
			tick = w.navTicker.C
		}
		select {
		case <-w.stop:
			w.logger.Debug("Worker received shutdown.")
			return
		case id := <-w.commands:
			w.execute(id)
		case <-w.nav:
			w.pollNavigation()
		case <-tick:
			w.pollNavigation()
		}
	}
}

// shutdown completes any deferred command and releases the browser.
func (w *Worker) shutdown() {
	w.stopNavTicker()
	if w.pending.Resolve(func(o *command.Outputs) {
		o.SetError(command.Errorf(command.UnhandledNative, "%v while waiting for navigation", ErrSessionClosed))
	}) {
		w.logger.Info("Completed pending navigation on shutdown.")
	}
	if err := w.browser.Close(); err != nil {
		w.logger.Warn("Error closing browser.", zap.Error(err))
		w.session.closeErr = err
	}
	w.logger.Info("Worker stopped.")
}

// notify is the browser's event hook. It runs on browser goroutines and only
// posts a self-message.
func (w *Worker) notify(ev Event) {
	w.logger.Debug("Browser event.", zap.Stringer("event", ev.Kind), zap.String("frame_id", ev.FrameID))
	if ev.NewDocument {
		w.documents.Add(1)
	}
	w.wake()
}

// wake posts a settle check. Pending checks coalesce.
func (w *Worker) wake() {
	select {
	case w.nav <- struct{}{}:
	default:
	}
}

// execute runs one command. The guard completes the channel on return
// unless the handler transferred completion to a pending navigation.
func (w *Worker) execute(id command.ID) {
	guard := command.NewGuard(w.ch)
	defer guard.Release()

	w.syncDocument()
	start := time.Now()
	err := w.safeDispatch(id, guard)
	if err != nil {
		// An error always completes immediately.
		if guard.State() == command.Transferred {
			guard.Arm()
			w.cancelNavigation()
		}
		w.ch.Outputs.SetError(err)
	}

	if guard.State() == command.Transferred {
		w.observer.NavigationDeferred(id)
		w.logger.Debug("Command deferred until navigation settles.", zap.Stringer("command", id))
		return
	}
	status := w.ch.Outputs.Status
	w.observer.CommandCompleted(id, status, time.Since(start))
	if status != command.Success {
		w.logger.Debug("Command failed.", zap.Stringer("command", id), zap.Stringer("status", status),
			zap.String("message", w.ch.Outputs.Message))
	}
}

func (w *Worker) safeDispatch(id command.ID, guard *command.Guard) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Panic while executing command.", zap.Stringer("command", id),
				zap.Any("panic_value", r), zap.Stack("stack"))
			err = command.Errorf(command.UnhandledNative, "panic while executing %s: %v", id, r)
		}
	}()
	return w.dispatch(id, guard)
}

// -- Navigation --

// beginNavigation starts a new document generation.
func (w *Worker) beginNavigation() {
	w.elements.invalidate()
	w.framePath = ""
}

// syncDocument starts a new generation if the browser loaded a top-level
// document since the last command, whatever caused the navigation.
func (w *Worker) syncDocument() {
	n := w.documents.Load()
	if n == w.seenDocuments {
		return
	}
	w.seenDocuments = n
	w.logger.Debug("New top-level document; element references are stale.")
	w.beginNavigation()
}

// deferNavigation hands the command's completion to the pending slot and
// arms the settle deadline. It must run before the navigation is issued.
func (w *Worker) deferNavigation(id command.ID, guard *command.Guard) error {
	if err := guard.TransferTo(&w.pending); err != nil {
		return command.Errorf(command.UnhandledNative, "defer %s: %w", id, err)
	}
	w.navCommand = id
	w.navStart = time.Now()
	w.navExpires = w.navStart.Add(w.timeouts.PageLoad)
	w.navTicker = time.NewTicker(w.settleInterval)
	return nil
}

func (w *Worker) cancelNavigation() {
	w.stopNavTicker()
	w.navCommand = command.Invalid
}

func (w *Worker) stopNavTicker() {
	if w.navTicker != nil {
		w.navTicker.Stop()
		w.navTicker = nil
	}
}

// pollNavigation checks whether the pending navigation has settled across
// the top document and every child frame, completing it if so.
func (w *Worker) pollNavigation() {
	if w.polling {
		return
	}
	w.polling = true
	defer func() { w.polling = false }()

	if !w.pending.Active() {
		w.stopNavTicker()
		return
	}

	frames, err := w.browser.Frames(w.ctx)
	switch {
	case err == nil && settle.Settled(frames):
		w.finishNavigation(nil)
	case time.Now().After(w.navExpires):
		w.finishNavigation(command.Errorf(command.NavigationTimeout,
			"page load did not complete within %s", w.timeouts.PageLoad))
	case err != nil:
		w.logger.Debug("Frame snapshot failed while navigating.", zap.Error(err))
	}
}

func (w *Worker) finishNavigation(err error) {
	id, elapsed := w.navCommand, time.Since(w.navStart)
	w.cancelNavigation()

	status := command.Success
	if e := command.AsError(err); e != nil {
		status = e.Status
	}
	w.observer.CommandCompleted(id, status, elapsed)
	w.logger.Debug("Navigation settled.", zap.Stringer("command", id),
		zap.Stringer("status", status), zap.Duration("elapsed", elapsed))
	w.pending.Resolve(func(o *command.Outputs) {
		if err != nil {
			o.SetError(err)
		}
	})
}

// awaitSettled blocks the worker until every frame has loaded. Used by
// commands that settle synchronously.
func (w *Worker) awaitSettled() error {
	w.polling = true
	defer func() { w.polling = false }()

	err := settle.Await(w.ctx, settle.Options{Timeout: w.timeouts.PageLoad, Interval: w.settleInterval},
		settle.FrameProbe(w.browser.Frames))
	if errors.Is(err, settle.ErrTimeout) {
		return command.Errorf(command.NavigationTimeout, "%v", err)
	}
	if err != nil {
		return fmt.Errorf("waiting for page to settle: %w", err)
	}
	return nil
}
