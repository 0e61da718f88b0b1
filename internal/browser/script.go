// internal/browser/script.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/scalpel-driver/internal/automation"
)

// elementMarker is the key the page side uses to carry DOM nodes through JSON.
const elementMarker = "__scalpel_element"

// Execute runs a client script in the requested frame of the current window.
// Async scripts receive a completion callback as their last argument and the
// result is awaited; ctx bounds how long.
func (c *Chrome) Execute(ctx context.Context, s automation.Script) (any, error) {
	args := s.Args
	if args == nil {
		args = []any{}
	}
	argsJSON, err := json.MarshalToString(toMarkers(args))
	if err != nil {
		return nil, fmt.Errorf("encoding script arguments: %w", err)
	}
	frameJSON, _ := json.MarshalToString(s.Frame)
	bodyJSON, _ := json.MarshalToString(s.Body)
	expr := fmt.Sprintf("%s\nwindow.__scalpel.script(%s, %s, %s, %t)", atomsJS, frameJSON, bodyJSON, argsJSON, s.Async)

	var opts []chromedp.EvaluateOption
	if s.Async {
		opts = append(opts, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		})
	}

	var raw string
	if err := c.run(ctx, chromedp.Evaluate(expr, &raw, opts...)); err != nil {
		return nil, err
	}
	var res atomResult
	if err := json.UnmarshalFromString(raw, &res); err != nil {
		return nil, fmt.Errorf("decoding script result: %w", err)
	}
	var out any
	if err := res.decode(&out); err != nil {
		return nil, err
	}
	return fromMarkers(out), nil
}

// toMarkers replaces Handles with element markers the page can revive.
func toMarkers(v any) any {
	switch t := v.(type) {
	case automation.Handle:
		return map[string]string{elementMarker: string(t)}
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toMarkers(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = toMarkers(e)
		}
		return out
	default:
		return v
	}
}

// fromMarkers is the inverse of toMarkers for decoded script results.
func fromMarkers(v any) any {
	switch t := v.(type) {
	case []any:
		for i, e := range t {
			t[i] = fromMarkers(e)
		}
		return t
	case map[string]any:
		if id, ok := t[elementMarker].(string); ok && len(t) == 1 {
			return automation.Handle(id)
		}
		for k, e := range t {
			t[k] = fromMarkers(e)
		}
		return t
	default:
		return v
	}
}
