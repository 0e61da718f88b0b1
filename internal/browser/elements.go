// internal/browser/elements.go
package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/scalpel-driver/internal/automation"
	"github.com/xkilldash9x/scalpel-driver/internal/command"
)

type handleArgs struct {
	Handle string `json:"handle"`
	Name   string `json:"name,omitempty"`
	Other  string `json:"other,omitempty"`
}

func on(h automation.Handle) handleArgs { return handleArgs{Handle: string(h)} }

// -- Finding --

func (c *Chrome) Find(ctx context.Context, frame string, root automation.Handle, loc command.Locator) ([]automation.Handle, error) {
	var ids []string
	err := c.atom(ctx, "find", map[string]any{
		"frame": frame,
		"root":  string(root),
		"using": string(loc.Using),
		"value": loc.Value,
	}, &ids)
	if err != nil {
		return nil, err
	}
	out := make([]automation.Handle, len(ids))
	for i, id := range ids {
		out[i] = automation.Handle(id)
	}
	return out, nil
}

func (c *Chrome) ActiveElement(ctx context.Context, frame string) (automation.Handle, error) {
	var id string
	err := c.atom(ctx, "active", map[string]any{"frame": frame}, &id)
	return automation.Handle(id), err
}

// -- Queries --

func (c *Chrome) Text(ctx context.Context, h automation.Handle) (string, error) {
	var s string
	err := c.atom(ctx, "text", on(h), &s)
	return s, err
}

func (c *Chrome) TagName(ctx context.Context, h automation.Handle) (string, error) {
	var s string
	err := c.atom(ctx, "tagName", on(h), &s)
	return s, err
}

func (c *Chrome) Attribute(ctx context.Context, h automation.Handle, name string) (string, bool, error) {
	var res struct {
		Present bool   `json:"present"`
		Value   string `json:"value"`
	}
	err := c.atom(ctx, "attribute", handleArgs{Handle: string(h), Name: name}, &res)
	return res.Value, res.Present, err
}

func (c *Chrome) Selected(ctx context.Context, h automation.Handle) (bool, error) {
	return c.boolAtom(ctx, "selected", on(h))
}

func (c *Chrome) Enabled(ctx context.Context, h automation.Handle) (bool, error) {
	return c.boolAtom(ctx, "enabled", on(h))
}

func (c *Chrome) Displayed(ctx context.Context, h automation.Handle) (bool, error) {
	return c.boolAtom(ctx, "displayed", on(h))
}

func (c *Chrome) Equal(ctx context.Context, a, b automation.Handle) (bool, error) {
	return c.boolAtom(ctx, "equal", handleArgs{Handle: string(a), Other: string(b)})
}

func (c *Chrome) boolAtom(ctx context.Context, op string, args handleArgs) (bool, error) {
	var b bool
	err := c.atom(ctx, op, args, &b)
	return b, err
}

func (c *Chrome) Rect(ctx context.Context, h automation.Handle) (automation.Rect, error) {
	var r struct {
		X, Y, Width, Height float64
	}
	if err := c.atom(ctx, "rect", on(h), &r); err != nil {
		return automation.Rect{}, err
	}
	return automation.Rect{
		Point: automation.Point{X: int64(r.X), Y: int64(r.Y)},
		Size:  automation.Size{Width: int64(r.Width), Height: int64(r.Height)},
	}, nil
}

func (c *Chrome) CSSValue(ctx context.Context, h automation.Handle, property string) (string, error) {
	var s string
	err := c.atom(ctx, "css", handleArgs{Handle: string(h), Name: property}, &s)
	return s, err
}

// -- Actions --

// Click scrolls h into view and presses the left button at its center.
func (c *Chrome) Click(ctx context.Context, h automation.Handle) error {
	var p struct{ X, Y float64 }
	if err := c.atom(ctx, "clickPoint", on(h), &p); err != nil {
		return err
	}
	w, err := c.active()
	if err != nil {
		return err
	}
	w.loads.hold(navigationGrace)
	return c.runIn(ctx, w, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MouseMoved, p.X, p.Y).Do(ctx); err != nil {
			return err
		}
		if err := input.DispatchMouseEvent(input.MousePressed, p.X, p.Y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, p.X, p.Y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx)
	}))
}

func (c *Chrome) Submit(ctx context.Context, h automation.Handle) error {
	w, err := c.active()
	if err != nil {
		return err
	}
	w.loads.hold(navigationGrace)
	return c.atom(ctx, "submit", on(h), nil)
}

func (c *Chrome) Clear(ctx context.Context, h automation.Handle) error {
	return c.atom(ctx, "clear", on(h), nil)
}

// SendKeys focuses h and types keys, pausing delay after each keystroke.
func (c *Chrome) SendKeys(ctx context.Context, h automation.Handle, keys string, delay time.Duration) error {
	if err := c.atom(ctx, "focus", on(h), nil); err != nil {
		return err
	}
	return c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var held input.Modifier
		for _, s := range strokes(keys) {
			for _, m := range s.release {
				held &^= m.bit
				if err := m.event(input.KeyUp, held).Do(ctx); err != nil {
					return err
				}
			}
			for _, m := range s.press {
				held |= m.bit
				if err := m.event(input.KeyRawDown, held).Do(ctx); err != nil {
					return err
				}
			}
			if s.text != "" {
				if err := chromedp.KeyEvent(s.text, chromedp.KeyModifiers(s.mods)).Do(ctx); err != nil {
					return err
				}
			}
			if err := pause(ctx, delay); err != nil {
				return err
			}
		}
		return nil
	}))
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
