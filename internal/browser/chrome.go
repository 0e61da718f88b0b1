// internal/browser/chrome.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-driver/internal/automation"
	"github.com/xkilldash9x/scalpel-driver/internal/command"
	"github.com/xkilldash9x/scalpel-driver/internal/config"
	"github.com/xkilldash9x/scalpel-driver/internal/settle"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// closeTimeout bounds the graceful browser shutdown in Close.
	closeTimeout = 10 * time.Second
	// navigationGrace is how long a click or submit keeps the window loading
	// while the browser decides whether it navigates.
	navigationGrace = 100 * time.Millisecond
)

// Launcher starts one Chrome instance per session, or one tab in an isolated
// browser context when attaching to a remote browser.
type Launcher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// NewLauncher returns a Launcher for cfg.
func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, logger: logger.Named("browser")}
}

// Launch allocates the browser and attaches to its first tab. ctx bounds the
// startup only; the browser lives until Close.
func (l *Launcher) Launch(ctx context.Context, notify automation.Notify) (automation.Browser, error) {
	if notify == nil {
		notify = func(automation.Event) {}
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
		tabOpts     = l.contextOptions()
	)
	if l.cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), l.cfg.RemoteURL)
		// Sessions sharing a remote browser each get their own cookie jar and
		// window set.
		tabOpts = append(tabOpts, chromedp.WithNewBrowserContext())
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), AllocatorOptions(l.cfg)...)
	}
	root, rootCancel := chromedp.NewContext(allocCtx, tabOpts...)

	// The first Run allocates the browser; cancelling its context would kill
	// the browser, so the startup deadline is enforced from outside.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(root) }()
	select {
	case err := <-started:
		if err != nil {
			rootCancel()
			allocCancel()
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
	case <-ctx.Done():
		rootCancel()
		allocCancel()
		<-started
		return nil, fmt.Errorf("browser did not start in time: %w", ctx.Err())
	}

	c := &Chrome{
		logger:      l.logger,
		notify:      notify,
		allocCancel: allocCancel,
		root:        root,
		rootCancel:  rootCancel,
		windows:     make(map[target.ID]*window),
	}
	cc := chromedp.FromContext(root)
	c.browserContext = cc.BrowserContextID
	w := c.track(cc.Target.TargetID, root, rootCancel)
	c.current.Store(w)

	l.logger.Info("Browser started.", zap.String("window", string(w.id)), zap.Bool("remote", l.cfg.RemoteURL != ""))
	return c, nil
}

func (l *Launcher) contextOptions() []chromedp.ContextOption {
	cdpLog := l.logger.Named("cdp").Sugar()
	opts := []chromedp.ContextOption{
		chromedp.WithLogf(cdpLog.Debugf),
		chromedp.WithErrorf(cdpLog.Debugf),
	}
	if l.cfg.Debug {
		opts = append(opts, chromedp.WithDebugf(cdpLog.Debugf))
	}
	return opts
}

// window is one top-level browsing context the session has attached to.
type window struct {
	id     target.ID
	ctx    context.Context
	cancel context.CancelFunc
	loads  *loadTracker
}

// Chrome is an automation.Browser backed by the DevTools protocol. All page
// work goes through the atoms installed in the top document of the current
// window.
type Chrome struct {
	logger *zap.Logger
	notify automation.Notify

	allocCancel    context.CancelFunc
	root           context.Context
	rootCancel     context.CancelFunc
	browserContext cdp.BrowserContextID

	// windows is touched only by the owning worker; current is also read by
	// event listeners.
	windows map[target.ID]*window
	current atomic.Pointer[window]
}

var _ automation.Browser = (*Chrome)(nil)

// track registers a window and starts forwarding its page events.
func (c *Chrome) track(id target.ID, ctx context.Context, cancel context.CancelFunc) *window {
	w := &window{id: id, ctx: ctx, cancel: cancel, loads: newLoadTracker(cdp.FrameID(id))}
	c.windows[id] = w
	chromedp.ListenTarget(ctx, func(ev any) {
		e, ok := w.loads.handle(ev)
		if ok && c.current.Load() == w {
			c.notify(e)
		}
	})
	return w
}

func (c *Chrome) active() (*window, error) {
	w := c.current.Load()
	if w == nil {
		return nil, command.Errorf(command.NoSuchWindow, "the current window has been closed")
	}
	return w, nil
}

// runIn runs actions against w, bounded by ctx. A ctx error is preferred over
// whatever chromedp reports for the cancelled call.
func (c *Chrome) runIn(ctx context.Context, w *window, actions ...chromedp.Action) error {
	opCtx, cancel := combineContext(w.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	w, err := c.active()
	if err != nil {
		return err
	}
	return c.runIn(ctx, w, actions...)
}

// atomResult is the envelope every atom and page script returns.
type atomResult struct {
	OK  jsoniter.RawMessage `json:"ok"`
	Err *struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"err"`
}

func (r atomResult) decode(out any) error {
	if r.Err != nil {
		return command.Errorf(command.Status(r.Err.Status), "%s", r.Err.Message)
	}
	if out == nil || len(r.OK) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.OK, out); err != nil {
		return fmt.Errorf("decoding page result: %w", err)
	}
	return nil
}

// atom invokes one of the page atoms with args and decodes its value into out.
func (c *Chrome) atom(ctx context.Context, op string, args any, out any) error {
	payload, err := json.MarshalToString(args)
	if err != nil {
		return fmt.Errorf("encoding %s arguments: %w", op, err)
	}
	opName, _ := json.MarshalToString(op)
	expr := atomsJS + "\nwindow.__scalpel.run(" + opName + ", " + payload + ")"

	var raw string
	if err := c.run(ctx, chromedp.Evaluate(expr, &raw)); err != nil {
		return err
	}
	var res atomResult
	if err := json.UnmarshalFromString(raw, &res); err != nil {
		return fmt.Errorf("decoding %s result: %w", op, err)
	}
	return res.decode(out)
}

// -- Navigation --

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	w, err := c.active()
	if err != nil {
		return err
	}
	w.loads.expect()
	var (
		loaderID  cdp.LoaderID
		errorText string
	)
	err = c.runIn(ctx, w, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		_, loaderID, errorText, _, err = page.Navigate(url).Do(ctx)
		return err
	}))
	switch {
	case err != nil:
		w.loads.cancel()
		return err
	case errorText != "":
		w.loads.cancel()
		return command.Errorf(command.UnhandledNative, "navigation to %s failed: %s", url, errorText)
	case loaderID == "":
		// Same-document navigation; nothing will load.
		w.loads.cancel()
	}
	return nil
}

func (c *Chrome) History(ctx context.Context, delta int) error {
	w, err := c.active()
	if err != nil {
		return err
	}
	return c.runIn(ctx, w, chromedp.ActionFunc(func(ctx context.Context) error {
		cur, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return err
		}
		idx := cur + int64(delta)
		if idx < 0 || idx >= int64(len(entries)) {
			// Moving past either end of history is a no-op.
			return nil
		}
		w.loads.expect()
		if err := page.NavigateToHistoryEntry(entries[idx].ID).Do(ctx); err != nil {
			w.loads.cancel()
			return err
		}
		return nil
	}))
}

func (c *Chrome) Reload(ctx context.Context) error {
	w, err := c.active()
	if err != nil {
		return err
	}
	w.loads.expect()
	if err := c.runIn(ctx, w, page.Reload()); err != nil {
		w.loads.cancel()
		return err
	}
	return nil
}

// -- Document --

func (c *Chrome) URL(ctx context.Context) (string, error) {
	var url string
	err := c.run(ctx, chromedp.Location(&url))
	return url, err
}

func (c *Chrome) Title(ctx context.Context) (string, error) {
	var title string
	err := c.run(ctx, chromedp.Title(&title))
	return title, err
}

func (c *Chrome) Source(ctx context.Context, frame string) (string, error) {
	var src string
	err := c.atom(ctx, "source", map[string]any{"frame": frame}, &src)
	return src, err
}

// -- Frames --

func (c *Chrome) Frames(ctx context.Context) ([]settle.Frame, error) {
	w, err := c.active()
	if err != nil {
		return nil, err
	}
	var states []struct {
		Path       string `json:"path"`
		ReadyState string `json:"readyState"`
	}
	if err := c.atom(ctx, "frames", struct{}{}, &states); err != nil {
		return nil, err
	}
	frames := make([]settle.Frame, len(states))
	for i, s := range states {
		frames[i] = settle.Frame{Path: s.Path, ReadyState: s.ReadyState}
	}
	if len(frames) > 0 && w.loads.loading() {
		frames[0].Loading = true
	}
	return frames, nil
}

func (c *Chrome) ResolveFrame(ctx context.Context, parent string, sel command.FrameSelector, elem automation.Handle) (string, error) {
	args := map[string]any{"parent": parent}
	switch sel.Kind {
	case command.FrameIndex:
		args["kind"], args["index"] = "index", sel.Index
	case command.FrameName:
		args["kind"], args["name"] = "name", sel.Name
	case command.FrameElement:
		args["kind"], args["handle"] = "element", string(elem)
	default:
		return "", command.Errorf(command.InvalidArgument, "unsupported frame selector")
	}
	var path string
	err := c.atom(ctx, "resolveFrame", args, &path)
	return path, err
}

// -- Browser --

func (c *Chrome) Version(ctx context.Context) (string, error) {
	var ua string
	if err := c.run(ctx, chromedp.Evaluate("navigator.userAgent", &ua)); err != nil {
		return "", err
	}
	return product(ua), nil
}

// product extracts the browser product token ("HeadlessChrome/124.0.0.0")
// from a user agent string.
func product(ua string) string {
	for _, field := range strings.Fields(ua) {
		if strings.HasPrefix(field, "HeadlessChrome/") || strings.HasPrefix(field, "Chrome/") {
			return field
		}
	}
	return ua
}

// Close detaches from every window and shuts the browser down.
func (c *Chrome) Close() error {
	c.current.Store(nil)
	rootID := chromedp.FromContext(c.root).Target.TargetID
	for id, w := range c.windows {
		if id != rootID {
			w.cancel()
		}
	}

	ctx, cancel := context.WithTimeout(c.root, closeTimeout)
	defer cancel()
	err := chromedp.Cancel(ctx)
	c.rootCancel()
	c.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("Browser did not close cleanly.", zap.Error(err))
		return fmt.Errorf("closing browser: %w", err)
	}
	c.logger.Info("Browser closed.")
	return nil
}
