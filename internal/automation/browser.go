// internal/automation/browser.go
package automation

import (
	"context"
	"time"

	"github.com/xkilldash9x/scalpel-driver/internal/command"
	"github.com/xkilldash9x/scalpel-driver/internal/settle"
)

// -- Interfaces for Dependency Inversion --

// Handle is the backend's own reference to a DOM node. It is never sent to
// clients; the session maps it to a command.ElementID.
type Handle string

// Point is a position in CSS pixels relative to the top-left of the page.
type Point struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

// Size is an element's rendered size in CSS pixels.
type Size struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// Rect is an element's bounding box.
type Rect struct {
	Point
	Size
}

// EventKind classifies notifications a Browser pushes to its worker.
type EventKind int

const (
	// EventLoadStarted fires when any frame starts loading a document.
	EventLoadStarted EventKind = iota
	// EventLoadStopped fires when a frame finishes or aborts loading.
	EventLoadStopped
	// EventLoadFired fires on the top document's load event.
	EventLoadFired
	// EventSameDocument fires for fragment and history API navigations.
	EventSameDocument
)

func (k EventKind) String() string {
	switch k {
	case EventLoadStarted:
		return "load_started"
	case EventLoadStopped:
		return "load_stopped"
	case EventLoadFired:
		return "load_fired"
	case EventSameDocument:
		return "same_document"
	default:
		return "unknown"
	}
}

// Event is a navigation notification. Browsers deliver events from their own
// goroutines; the hook they are given must not block.
type Event struct {
	Kind    EventKind
	FrameID string
	// NewDocument marks the top-level frame starting to load a document.
	// Element references from the previous document are stale from then on.
	NewDocument bool
}

// Notify receives browser events.
type Notify func(Event)

// Script is a script invocation. Handles in Args are passed to the page as
// DOM nodes; DOM nodes in the result come back as Handles.
type Script struct {
	Body  string
	Args  []any
	Async bool
	Frame string
}

// Browser is the automation surface of one browser instance. Implementations
// are not safe for concurrent use; a session calls them only from its worker
// goroutine.
//
// Frame arguments are dot-separated child frame index paths from the top
// document of the current window; empty means the top document. Failures
// should be *command.Error values where the wire status is known (stale
// handles, missing frames, script exceptions); anything else is reported as
// an unhandled native error.
type Browser interface {
	// Navigate issues a navigation and returns once the request is accepted,
	// without waiting for the page to load.
	Navigate(ctx context.Context, url string) error
	// History moves delta entries through session history.
	History(ctx context.Context, delta int) error
	Reload(ctx context.Context) error

	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Source(ctx context.Context, frame string) (string, error)

	// Frames snapshots the load state of the top document and every nested
	// frame of the current window.
	Frames(ctx context.Context) ([]settle.Frame, error)
	// ResolveFrame returns the path of the child frame of parent chosen by
	// sel. elem is the handle for FrameElement selectors.
	ResolveFrame(ctx context.Context, parent string, sel command.FrameSelector, elem Handle) (string, error)

	// Find queries for elements. An empty root searches the whole document
	// of frame.
	Find(ctx context.Context, frame string, root Handle, loc command.Locator) ([]Handle, error)
	ActiveElement(ctx context.Context, frame string) (Handle, error)

	Text(ctx context.Context, h Handle) (string, error)
	TagName(ctx context.Context, h Handle) (string, error)
	// Attribute reports ok=false when the attribute is absent.
	Attribute(ctx context.Context, h Handle, name string) (value string, ok bool, err error)
	Selected(ctx context.Context, h Handle) (bool, error)
	Enabled(ctx context.Context, h Handle) (bool, error)
	Displayed(ctx context.Context, h Handle) (bool, error)
	Rect(ctx context.Context, h Handle) (Rect, error)
	CSSValue(ctx context.Context, h Handle, property string) (string, error)
	Equal(ctx context.Context, a, b Handle) (bool, error)

	Click(ctx context.Context, h Handle) error
	Submit(ctx context.Context, h Handle) error
	Clear(ctx context.Context, h Handle) error
	// SendKeys types keys into h, pausing delay between keystrokes.
	SendKeys(ctx context.Context, h Handle, keys string, delay time.Duration) error

	Cookies(ctx context.Context) ([]command.Cookie, error)
	SetCookie(ctx context.Context, c command.Cookie) error
	// DeleteCookies removes the named cookie, or every cookie when name is
	// empty.
	DeleteCookies(ctx context.Context, name string) error

	Execute(ctx context.Context, s Script) (any, error)

	// Window handles identify top-level browsing contexts.
	Window() string
	Windows(ctx context.Context) ([]string, error)
	SwitchWindow(ctx context.Context, handle string) error
	// CloseWindow closes the current window. The browser has no current
	// window afterwards until SwitchWindow succeeds.
	CloseWindow(ctx context.Context) error

	// Version is the browser product string reported in capabilities.
	Version(ctx context.Context) (string, error)

	// Close releases the instance. It is called exactly once, from the
	// worker goroutine, when the session ends.
	Close() error
}

// Launcher constructs a Browser. It runs on the session's worker goroutine.
type Launcher interface {
	Launch(ctx context.Context, notify Notify) (Browser, error)
}

// LauncherFunc adapts a function into a Launcher.
type LauncherFunc func(ctx context.Context, notify Notify) (Browser, error)

func (f LauncherFunc) Launch(ctx context.Context, notify Notify) (Browser, error) {
	return f(ctx, notify)
}
