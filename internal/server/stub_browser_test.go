// internal/server/stub_browser_test.go
package server

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/scalpel-driver/internal/automation"
	"github.com/xkilldash9x/scalpel-driver/internal/command"
	"github.com/xkilldash9x/scalpel-driver/internal/settle"
)

// stubBrowser is a minimal automation.Browser: pages load instantly and the
// only elements are the ones listed in elements, keyed by locator value.
type stubBrowser struct {
	mu sync.Mutex

	url        string
	title      string
	elements   map[string][]automation.Handle
	findCalls  int
	clickGate  chan struct{}
	scriptArgs []any
	scriptRet  any
	closed     bool
}

func newStubBrowser() *stubBrowser {
	return &stubBrowser{
		url:      "about:blank",
		title:    "Stub",
		elements: map[string][]automation.Handle{"#main": {"h-main"}},
	}
}

func (b *stubBrowser) launcher() automation.Launcher {
	return automation.LauncherFunc(func(context.Context, automation.Notify) (automation.Browser, error) {
		return b, nil
	})
}

func (b *stubBrowser) Navigate(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.url = url
	return nil
}

func (b *stubBrowser) History(context.Context, int) error { return nil }
func (b *stubBrowser) Reload(context.Context) error       { return nil }

func (b *stubBrowser) URL(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.url, nil
}

func (b *stubBrowser) Title(context.Context) (string, error) { return b.title, nil }

func (b *stubBrowser) Source(context.Context, string) (string, error) {
	return "<html></html>", nil
}

func (b *stubBrowser) Frames(context.Context) ([]settle.Frame, error) {
	return []settle.Frame{{ReadyState: settle.ReadyComplete}}, nil
}

func (b *stubBrowser) ResolveFrame(context.Context, string, command.FrameSelector, automation.Handle) (string, error) {
	return "0", nil
}

func (b *stubBrowser) Find(_ context.Context, _ string, _ automation.Handle, loc command.Locator) ([]automation.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.findCalls++
	return b.elements[loc.Value], nil
}

func (b *stubBrowser) finds() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.findCalls
}

func (b *stubBrowser) ActiveElement(context.Context, string) (automation.Handle, error) {
	return "h-main", nil
}

func (b *stubBrowser) Text(context.Context, automation.Handle) (string, error) {
	return "main text", nil
}

func (b *stubBrowser) TagName(context.Context, automation.Handle) (string, error) { return "div", nil }

func (b *stubBrowser) Attribute(_ context.Context, _ automation.Handle, name string) (string, bool, error) {
	if name == "id" {
		return "main", true, nil
	}
	return "", false, nil
}

func (b *stubBrowser) Selected(context.Context, automation.Handle) (bool, error)  { return false, nil }
func (b *stubBrowser) Enabled(context.Context, automation.Handle) (bool, error)   { return true, nil }
func (b *stubBrowser) Displayed(context.Context, automation.Handle) (bool, error) { return true, nil }

func (b *stubBrowser) Rect(context.Context, automation.Handle) (automation.Rect, error) {
	return automation.Rect{Point: automation.Point{X: 10, Y: 20}, Size: automation.Size{Width: 300, Height: 40}}, nil
}

func (b *stubBrowser) CSSValue(context.Context, automation.Handle, string) (string, error) {
	return "block", nil
}

func (b *stubBrowser) Equal(_ context.Context, x, y automation.Handle) (bool, error) { return x == y, nil }

// Click blocks on clickGate when it is set.
func (b *stubBrowser) Click(ctx context.Context, _ automation.Handle) error {
	b.mu.Lock()
	gate := b.clickGate
	b.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *stubBrowser) Submit(context.Context, automation.Handle) error { return nil }
func (b *stubBrowser) Clear(context.Context, automation.Handle) error  { return nil }

func (b *stubBrowser) SendKeys(context.Context, automation.Handle, string, time.Duration) error {
	return nil
}

func (b *stubBrowser) Cookies(context.Context) ([]command.Cookie, error) {
	return []command.Cookie{{Name: "sid", Value: "1", Path: "/"}}, nil
}

func (b *stubBrowser) SetCookie(context.Context, command.Cookie) error { return nil }
func (b *stubBrowser) DeleteCookies(context.Context, string) error     { return nil }

func (b *stubBrowser) Execute(_ context.Context, s automation.Script) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scriptArgs = s.Args
	return b.scriptRet, nil
}

func (b *stubBrowser) Window() string                             { return "w1" }
func (b *stubBrowser) Windows(context.Context) ([]string, error)  { return []string{"w1"}, nil }
func (b *stubBrowser) SwitchWindow(context.Context, string) error { return nil }
func (b *stubBrowser) CloseWindow(context.Context) error          { return nil }
func (b *stubBrowser) Version(context.Context) (string, error)    { return "Stub/1.0", nil }

func (b *stubBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *stubBrowser) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

var _ automation.Browser = (*stubBrowser)(nil)
