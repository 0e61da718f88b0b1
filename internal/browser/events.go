// internal/browser/events.go
package browser

import (
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"

	"github.com/xkilldash9x/scalpel-driver/internal/automation"
)

// loadTracker follows page lifecycle events for one window. A document's
// readyState alone cannot tell that a navigation has been requested but not
// yet committed, so the tracker also records navigations issued through the
// driver until the browser reports them finished.
type loadTracker struct {
	mainFrame cdp.FrameID

	mu      sync.Mutex
	busy    map[cdp.FrameID]struct{}
	pending bool
	// graceUntil keeps the window loading for a moment after an input that
	// may navigate, until the browser has had a chance to report it.
	graceUntil time.Time
}

func newLoadTracker(mainFrame cdp.FrameID) *loadTracker {
	return &loadTracker{mainFrame: mainFrame, busy: make(map[cdp.FrameID]struct{})}
}

// expect marks a driver-issued navigation as in flight. Call it before the
// navigation command so that an early load event cannot be missed.
func (t *loadTracker) expect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = true
}

// cancel withdraws expect for a navigation the browser rejected or handled
// within the current document.
func (t *loadTracker) cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = false
}

// hold reports the window as loading for d. Clicks and form submissions use
// it: they navigate only sometimes, and the browser announces the navigation
// only after the input has been dispatched.
func (t *loadTracker) hold(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.graceUntil = time.Now().Add(d)
}

// loading reports whether any navigation is in flight.
func (t *loadTracker) loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending || len(t.busy) > 0 || time.Now().Before(t.graceUntil)
}

// handle applies ev and returns the event to forward to the worker, if any.
func (t *loadTracker) handle(ev any) (automation.Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case *page.EventFrameStartedLoading:
		top := e.FrameID == t.mainFrame
		if top {
			// A new top-level document replaces every child frame.
			clear(t.busy)
			t.graceUntil = time.Time{}
		}
		t.busy[e.FrameID] = struct{}{}
		return automation.Event{Kind: automation.EventLoadStarted, FrameID: string(e.FrameID), NewDocument: top}, true

	case *page.EventFrameStoppedLoading:
		delete(t.busy, e.FrameID)
		if e.FrameID == t.mainFrame {
			t.pending = false
		}
		return automation.Event{Kind: automation.EventLoadStopped, FrameID: string(e.FrameID)}, true

	case *page.EventFrameDetached:
		delete(t.busy, e.FrameID)
		return automation.Event{}, false

	case *page.EventLoadEventFired:
		t.pending = false
		return automation.Event{Kind: automation.EventLoadFired, FrameID: string(t.mainFrame)}, true

	case *page.EventNavigatedWithinDocument:
		if e.FrameID == t.mainFrame {
			t.pending = false
			t.graceUntil = time.Time{}
		}
		return automation.Event{Kind: automation.EventSameDocument, FrameID: string(e.FrameID)}, true
	}
	return automation.Event{}, false
}
