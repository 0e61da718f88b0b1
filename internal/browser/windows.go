// internal/browser/windows.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-driver/internal/command"
)

// Window returns the handle of the current window, or "" after it was closed.
func (c *Chrome) Window() string {
	if w := c.current.Load(); w != nil {
		return string(w.id)
	}
	return ""
}

// Windows lists the handles of every open page in the session's browser.
func (c *Chrome) Windows(ctx context.Context) ([]string, error) {
	infos, err := c.pages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = string(info.TargetID)
	}
	return out, nil
}

func (c *Chrome) pages(ctx context.Context) ([]*target.Info, error) {
	opCtx, cancel := combineContext(c.root, ctx)
	defer cancel()
	infos, err := chromedp.Targets(opCtx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("listing windows: %w", err)
	}
	return pageTargets(infos, c.browserContext), nil
}

// pageTargets keeps the top-level pages of one browser context. An empty
// browserContext keeps pages from every context.
func pageTargets(infos []*target.Info, browserContext cdp.BrowserContextID) []*target.Info {
	var out []*target.Info
	for _, info := range infos {
		if info.Type != "page" || info.Subtype == "prerender" {
			continue
		}
		if browserContext != "" && info.BrowserContextID != browserContext {
			continue
		}
		out = append(out, info)
	}
	return out
}

// SwitchWindow makes handle the current window, attaching to it the first
// time it is used.
func (c *Chrome) SwitchWindow(ctx context.Context, handle string) error {
	id := target.ID(handle)
	if w, ok := c.windows[id]; ok {
		c.current.Store(w)
		return nil
	}

	infos, err := c.pages(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, info := range infos {
		if info.TargetID == id {
			found = true
			break
		}
	}
	if !found {
		return command.Errorf(command.NoSuchWindow, "no window with handle %q", handle)
	}

	wctx, cancel := chromedp.NewContext(c.root, chromedp.WithTargetID(id))
	// As with the first tab, the attaching Run must not carry the caller's
	// deadline: cancelling it would close the window.
	attached := make(chan error, 1)
	go func() { attached <- chromedp.Run(wctx) }()
	select {
	case err := <-attached:
		if err != nil {
			cancel()
			return fmt.Errorf("attaching to window %s: %w", handle, err)
		}
	case <-ctx.Done():
		<-attached
		cancel()
		return ctx.Err()
	}

	w := c.track(id, wctx, cancel)
	c.current.Store(w)
	c.logger.Debug("Attached to window.", zap.String("window", handle))
	return nil
}

// CloseWindow closes the current window. The root tab's context stays alive
// because every other window's context derives from it.
func (c *Chrome) CloseWindow(ctx context.Context) error {
	w, err := c.active()
	if err != nil {
		return err
	}
	if err := c.runIn(ctx, w, page.Close()); err != nil {
		return err
	}
	c.current.Store(nil)
	delete(c.windows, w.id)
	if w.ctx != c.root {
		w.cancel()
	}
	return nil
}
