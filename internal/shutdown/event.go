// internal/shutdown/event.go
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// EventPath is the shutdown event file for the driver running as pid.
// Creating it asks that driver to shut down gracefully.
func EventPath(pid int) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("scalpel-driver-shutdown-%d", pid))
}

// Trigger raises the event at path.
func Trigger(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("raising shutdown event %s: %w", path, err)
	}
	return f.Close()
}

// Watcher waits for a shutdown event file to appear.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	fired     chan struct{}
	fireOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Watch starts watching path. A file left over from an earlier process with
// the same pid is removed first. The watcher stops when ctx is done or Close
// is called.
func Watch(ctx context.Context, path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale shutdown event %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	// fsnotify watches directories; the event file does not exist yet.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:    path,
		watcher: fw,
		logger:  logger.Named("shutdown").With(zap.String("path", path)),
		fired:   make(chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run(ctx)
	w.logger.Debug("Watching for shutdown event.")
	return w, nil
}

// Fired is closed once the event has been raised.
func (w *Watcher) Fired() <-chan struct{} { return w.fired }

// Path is the watched event file.
func (w *Watcher) Path() string { return w.path }

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			w.fire()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error.", zap.Error(err))
		}
	}
}

func (w *Watcher) fire() {
	w.fireOnce.Do(func() {
		w.logger.Info("Shutdown event raised.")
		if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("Could not remove shutdown event file.", zap.Error(err))
		}
		close(w.fired)
	})
}

// Close stops watching and waits for the watch loop to exit.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stop)
		<-w.done
		err = w.watcher.Close()
	})
	return err
}
