// internal/automation/session.go
package automation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-driver/internal/command"
)

var (
	// ErrSessionNotCreated is returned by Open when the worker could not
	// construct its browser.
	ErrSessionNotCreated = errors.New("session not created")
	// ErrSessionClosed is reported to commands that race with Close.
	ErrSessionClosed = errors.New("session closed")
)

// Observer receives per-command outcomes. Implementations must be safe for
// concurrent use; they are called from worker goroutines.
type Observer interface {
	CommandCompleted(id command.ID, status command.Status, elapsed time.Duration)
	NavigationDeferred(id command.ID)
}

type nopObserver struct{}

func (nopObserver) CommandCompleted(command.ID, command.Status, time.Duration) {}
func (nopObserver) NavigationDeferred(command.ID)                             {}

// Options configure a new session.
type Options struct {
	// ID overrides the generated session id. Used by tests.
	ID       string
	Launcher Launcher
	Logger   *zap.Logger
	Observer Observer

	Timeouts       Timeouts
	SettleInterval time.Duration
	StartupTimeout time.Duration

	// Desired are the capabilities the client asked for. They are echoed
	// back merged under what the driver actually provides.
	Desired map[string]any
}

// Session is one automation session: a worker goroutine pinned to its OS
// thread, the browser it owns, and the command channel the router uses to
// reach it.
type Session struct {
	id      string
	created time.Time
	caps    map[string]any
	logger  *zap.Logger

	ch       *command.Channel
	commands chan command.ID
	stop     chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc
	worker   *Worker

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

type startResult struct {
	caps map[string]any
	err  error
}

// Open starts a session and blocks until its browser is ready. A launch
// failure or ctx expiry tears the worker down and returns an error wrapping
// ErrSessionNotCreated.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Launcher == nil {
		return nil, fmt.Errorf("%w: no browser launcher configured", ErrSessionNotCreated)
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       opts.ID,
		created:  time.Now().UTC(),
		logger:   opts.Logger.Named("session").With(zap.String("session_id", opts.ID)),
		ch:       command.NewChannel(),
		commands: make(chan command.ID),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	w := newWorker(workerCtx, s, opts)
	s.worker = w
	started := make(chan startResult, 1)
	go w.run(started)

	select {
	case res := <-started:
		if res.err != nil {
			s.Close(context.Background())
			return nil, fmt.Errorf("%w: %w", ErrSessionNotCreated, res.err)
		}
		s.caps = res.caps
	case <-ctx.Done():
		s.Close(context.Background())
		return nil, fmt.Errorf("%w: %w", ErrSessionNotCreated, ctx.Err())
	}

	s.logger.Info("Session opened.")
	return s, nil
}

func (s *Session) ID() string           { return s.id }
func (s *Session) CreatedAt() time.Time { return s.created }

// Capabilities returns a copy of the capabilities negotiated at open.
func (s *Session) Capabilities() map[string]any { return maps.Clone(s.caps) }

// Busy reports whether a command is in flight.
func (s *Session) Busy() bool { return s.ch.Busy() }

// Execute runs one command on the worker and returns its outputs. prepare
// fills the inputs while the caller owns the channel. If ctx ends first the
// command is abandoned: the result is a timeout error and the channel stays
// unavailable until the worker completes it.
//
// A failing command is reported through Outputs.Status, not the error; the
// error is reserved for failures to run the command at all.
func (s *Session) Execute(ctx context.Context, id command.ID, prepare func(*command.Inputs)) (command.Outputs, error) {
	if s.closed.Load() {
		return command.Outputs{}, s.closedError()
	}
	if err := s.ch.Acquire(ctx); err != nil {
		return command.Outputs{}, command.Errorf(command.NavigationTimeout, "%s: previous command still running: %w", id, err)
	}
	if prepare != nil {
		prepare(&s.ch.Inputs)
	}

	select {
	case s.commands <- id:
	case <-s.done:
		s.ch.Release()
		return command.Outputs{}, s.closedError()
	}

	if err := s.ch.Wait(ctx); err != nil {
		s.ch.Abandon()
		s.logger.Warn("Command abandoned by caller, worker still running it.",
			zap.Stringer("command", id), zap.Error(err))
		return command.Outputs{}, command.Errorf(command.NavigationTimeout, "%s did not complete in time: %w", id, err)
	}
	out := s.ch.Outputs
	s.ch.Release()
	return out, nil
}

func (s *Session) closedError() error {
	return command.Errorf(command.NoSuchSession, "session %s: %w", s.id, ErrSessionClosed)
}

// Close stops the worker, completing any pending command with an error, and
// closes the browser. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		close(s.stop)
	})
	select {
	case <-s.done:
		return s.closeErr
	case <-ctx.Done():
		return fmt.Errorf("waiting for session %s to stop: %w", s.id, ctx.Err())
	}
}

// Done is closed once the worker has exited.
func (s *Session) Done() <-chan struct{} { return s.done }
