// internal/automation/fake_browser_test.go
package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-driver/internal/command"
	"github.com/xkilldash9x/scalpel-driver/internal/settle"
)

// interval records when a fake operation ran.
type interval struct {
	start, end time.Time
}

// fakeBrowser is an in-memory Browser. Page loads take loadDelay to settle
// and child frames finish childDelay after the top document.
type fakeBrowser struct {
	mu sync.Mutex

	url          string
	history      []string
	loadStarted  time.Time
	loadDelay    time.Duration
	childDelay   time.Duration
	frameCount   int
	navigateErr  error
	framesErr    error
	neverSettles bool

	// elements maps a locator value to the handles it matches. Entries in
	// appearAfter only match once Find has been called that many times.
	elements    map[string][]Handle
	appearAfter map[string]int
	findCalls   map[string]int
	text        map[Handle]string

	clicks      []interval
	clickDelay  time.Duration
	clickNav    bool
	panicOn     string
	keys        []string
	keyDelays   []time.Duration
	cookies     []command.Cookie
	window      string
	windows     []string
	scriptValue any
	scriptArgs  []any
	scriptHang  bool
	closed      bool
	closeCount  int
	notify      Notify
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		url:         "about:blank",
		elements:    map[string][]Handle{},
		appearAfter: map[string]int{},
		findCalls:   map[string]int{},
		text:        map[Handle]string{},
		window:      "w1",
		windows:     []string{"w1"},
	}
}

func (f *fakeBrowser) launcher() Launcher {
	return LauncherFunc(func(ctx context.Context, notify Notify) (Browser, error) {
		f.mu.Lock()
		f.notify = notify
		f.mu.Unlock()
		return f, nil
	})
}

func (f *fakeBrowser) startLoad(url string) {
	if url != "" {
		f.url = url
		f.history = append(f.history, url)
	}
	f.loadStarted = time.Now()
}

func (f *fakeBrowser) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.navigateErr != nil {
		return f.navigateErr
	}
	f.startLoad(url)
	return nil
}

func (f *fakeBrowser) History(ctx context.Context, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startLoad("")
	return nil
}

func (f *fakeBrowser) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startLoad("")
	return nil
}

func (f *fakeBrowser) URL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeBrowser) Title(ctx context.Context) (string, error) { return "Fake Page", nil }

func (f *fakeBrowser) Source(ctx context.Context, frame string) (string, error) {
	return fmt.Sprintf("<html data-frame=%q></html>", frame), nil
}

func (f *fakeBrowser) Frames(ctx context.Context) ([]settle.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.framesErr != nil {
		return nil, f.framesErr
	}
	elapsed := time.Since(f.loadStarted)
	state := func(after time.Duration) string {
		if f.neverSettles || elapsed < after {
			return "loading"
		}
		return settle.ReadyComplete
	}
	frames := []settle.Frame{{ReadyState: state(f.loadDelay)}}
	for i := 0; i < f.frameCount; i++ {
		frames = append(frames, settle.Frame{Path: fmt.Sprint(i), ReadyState: state(f.loadDelay + f.childDelay)})
	}
	return frames, nil
}

func (f *fakeBrowser) ResolveFrame(ctx context.Context, parent string, sel command.FrameSelector, elem Handle) (string, error) {
	var idx int
	switch sel.Kind {
	case command.FrameIndex:
		idx = sel.Index
	case command.FrameName:
		if sel.Name != "inner" {
			return "", command.Errorf(command.NoSuchDocument, "no frame named %q", sel.Name)
		}
	case command.FrameElement:
		if elem == "" {
			return "", command.Errorf(command.NoSuchDocument, "element is not a frame")
		}
	}
	if idx >= f.frameCount {
		return "", command.Errorf(command.NoSuchDocument, "no frame at index %d", idx)
	}
	if parent == "" {
		return fmt.Sprint(idx), nil
	}
	return parent + "." + fmt.Sprint(idx), nil
}

func (f *fakeBrowser) Find(ctx context.Context, frame string, root Handle, loc command.Locator) ([]Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls[loc.Value]++
	if n, ok := f.appearAfter[loc.Value]; ok && f.findCalls[loc.Value] < n {
		return nil, nil
	}
	hs := f.elements[loc.Value]
	if root != "" {
		var children []Handle
		for _, h := range hs {
			if strings.HasPrefix(string(h), string(root)+"/") {
				children = append(children, h)
			}
		}
		return children, nil
	}
	return hs, nil
}

func (f *fakeBrowser) ActiveElement(ctx context.Context, frame string) (Handle, error) {
	return "body", nil
}

func (f *fakeBrowser) Text(ctx context.Context, h Handle) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text[h], nil
}

func (f *fakeBrowser) TagName(ctx context.Context, h Handle) (string, error) { return "div", nil }

func (f *fakeBrowser) Attribute(ctx context.Context, h Handle, name string) (string, bool, error) {
	if name == "id" {
		return string(h), true, nil
	}
	return "", false, nil
}

func (f *fakeBrowser) Selected(ctx context.Context, h Handle) (bool, error)  { return false, nil }
func (f *fakeBrowser) Enabled(ctx context.Context, h Handle) (bool, error)   { return true, nil }
func (f *fakeBrowser) Displayed(ctx context.Context, h Handle) (bool, error) { return true, nil }

func (f *fakeBrowser) Rect(ctx context.Context, h Handle) (Rect, error) {
	return Rect{Point: Point{X: 10, Y: 20}, Size: Size{Width: 100, Height: 50}}, nil
}

func (f *fakeBrowser) CSSValue(ctx context.Context, h Handle, property string) (string, error) {
	return "block", nil
}

func (f *fakeBrowser) Equal(ctx context.Context, a, b Handle) (bool, error) { return a == b, nil }

func (f *fakeBrowser) Click(ctx context.Context, h Handle) error {
	f.mu.Lock()
	panicking, delay := f.panicOn == "click", f.clickDelay
	f.mu.Unlock()
	if panicking {
		panic("click exploded")
	}
	start := time.Now()
	time.Sleep(delay)
	f.mu.Lock()
	f.clicks = append(f.clicks, interval{start: start, end: time.Now()})
	nav := f.clickNav
	f.mu.Unlock()
	if nav {
		f.loadDocument(f.url + "/clicked")
	}
	return nil
}

// loadDocument starts loading a new top-level document the way the page
// itself would, reporting it through the event hook.
func (f *fakeBrowser) loadDocument(url string) {
	f.mu.Lock()
	f.startLoad(url)
	notify := f.notify
	f.mu.Unlock()
	if notify != nil {
		notify(Event{Kind: EventLoadStarted, FrameID: "main", NewDocument: true})
	}
}

func (f *fakeBrowser) Submit(ctx context.Context, h Handle) error { return nil }
func (f *fakeBrowser) Clear(ctx context.Context, h Handle) error  { return nil }

func (f *fakeBrowser) SendKeys(ctx context.Context, h Handle, keys string, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, keys)
	f.keyDelays = append(f.keyDelays, delay)
	return nil
}

func (f *fakeBrowser) Cookies(ctx context.Context) ([]command.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]command.Cookie(nil), f.cookies...), nil
}

func (f *fakeBrowser) SetCookie(ctx context.Context, c command.Cookie) error {
	if c.Domain == "rejected.test" {
		return errors.New("cookie domain mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = append(f.cookies, c)
	return nil
}

func (f *fakeBrowser) DeleteCookies(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == "" {
		f.cookies = nil
		return nil
	}
	kept := f.cookies[:0]
	for _, c := range f.cookies {
		if c.Name != name {
			kept = append(kept, c)
		}
	}
	f.cookies = kept
	return nil
}

func (f *fakeBrowser) Execute(ctx context.Context, s Script) (any, error) {
	f.mu.Lock()
	f.scriptArgs = s.Args
	hang, value := f.scriptHang, f.scriptValue
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if strings.Contains(s.Body, "throw") {
		return nil, command.Errorf(command.ScriptError, "Error: thrown by script")
	}
	return value, nil
}

func (f *fakeBrowser) Window() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.window
}

func (f *fakeBrowser) Windows(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.windows...), nil
}

func (f *fakeBrowser) SwitchWindow(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.windows {
		if w == handle {
			f.window = handle
			return nil
		}
	}
	return command.Errorf(command.NoSuchWindow, "no window %q", handle)
}

func (f *fakeBrowser) CloseWindow(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.windows[:0]
	for _, w := range f.windows {
		if w != f.window {
			kept = append(kept, w)
		}
	}
	f.windows = kept
	f.window = ""
	return nil
}

func (f *fakeBrowser) Version(ctx context.Context) (string, error) { return "fake/1.0", nil }

func (f *fakeBrowser) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCount++
	return nil
}

func (f *fakeBrowser) set(fn func(f *fakeBrowser)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// recordingObserver collects command outcomes.
type recordingObserver struct {
	mu        sync.Mutex
	completed map[command.ID][]command.Status
	deferred  map[command.ID]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{completed: map[command.ID][]command.Status{}, deferred: map[command.ID]int{}}
}

func (o *recordingObserver) CommandCompleted(id command.ID, status command.Status, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed[id] = append(o.completed[id], status)
}

func (o *recordingObserver) NavigationDeferred(id command.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deferred[id]++
}

// openSession starts a session on fb with fast settle polling and closes it
// when the test ends.
func openSession(t *testing.T, fb *fakeBrowser, mutate ...func(*Options)) *Session {
	t.Helper()
	opts := Options{
		Launcher:       fb.launcher(),
		Logger:         zaptest.NewLogger(t),
		SettleInterval: 5 * time.Millisecond,
		Timeouts:       Timeouts{PageLoad: 2 * time.Second, Script: time.Second},
	}
	for _, m := range mutate {
		m(&opts)
	}
	s, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close(context.Background()))
	})
	return s
}

// run executes a command and fails the test if it could not be run at all.
func run(t *testing.T, s *Session, id command.ID, prepare func(*command.Inputs)) command.Outputs {
	t.Helper()
	out, err := s.Execute(context.Background(), id, prepare)
	require.NoError(t, err)
	return out
}
