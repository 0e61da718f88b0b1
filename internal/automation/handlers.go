// internal/automation/handlers.go
package automation

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"time"

	"github.com/xkilldash9x/scalpel-driver/internal/command"
	"github.com/xkilldash9x/scalpel-driver/internal/settle"
)

// dispatch routes a command to its handler. Handlers read the channel's
// inputs and write its outputs; a returned error is recorded by the caller.
func (w *Worker) dispatch(id command.ID, guard *command.Guard) error {
	in, out := &w.ch.Inputs, &w.ch.Outputs
	switch id {
	// -- Session --
	case command.NewSession, command.Quit:
		return command.Errorf(command.UnsupportedOperation, "%s is not executed by a worker", id)
	case command.GetSessionCapabilities:
		out.SetObject(w.capabilities)
		return nil

	// -- Navigation --
	case command.Get:
		return w.get(in.Text, guard)
	case command.GetCurrentURL:
		return w.stringResult(out, w.browser.URL)
	case command.GoBack:
		return w.historyNavigation(func(ctx context.Context) error { return w.browser.History(ctx, -1) })
	case command.GoForward:
		return w.historyNavigation(func(ctx context.Context) error { return w.browser.History(ctx, 1) })
	case command.Refresh:
		return w.historyNavigation(w.browser.Reload)

	// -- Document --
	case command.GetTitle:
		return w.stringResult(out, w.browser.Title)
	case command.GetPageSource:
		return w.stringResult(out, func(ctx context.Context) (string, error) {
			return w.browser.Source(ctx, w.framePath)
		})

	// -- Element queries --
	case command.FindElement:
		return w.findOne(out, "", in.Locator)
	case command.FindElements:
		return w.findMany(out, "", in.Locator)
	case command.FindChildElement, command.FindChildElements:
		root, err := w.resolve(in.Element)
		if err != nil {
			return err
		}
		if id == command.FindChildElement {
			return w.findOne(out, root, in.Locator)
		}
		return w.findMany(out, root, in.Locator)
	case command.GetActiveElement:
		h, err := w.browser.ActiveElement(w.ctx, w.framePath)
		if err != nil {
			return err
		}
		out.SetElement(w.elements.register(h, w.browser.Window()))
		return nil
	case command.GetElementText:
		return w.elementString(out, in.Element, w.browser.Text)
	case command.GetElementTagName:
		return w.elementString(out, in.Element, w.browser.TagName)
	case command.GetElementAttribute:
		return w.attribute(out, in.Element, in.Name)
	case command.IsElementSelected:
		return w.elementBool(out, in.Element, w.browser.Selected)
	case command.IsElementEnabled:
		return w.elementBool(out, in.Element, w.browser.Enabled)
	case command.IsElementDisplayed:
		return w.elementBool(out, in.Element, w.browser.Displayed)
	case command.GetElementLocation, command.GetElementSize:
		h, err := w.resolve(in.Element)
		if err != nil {
			return err
		}
		rect, err := w.browser.Rect(w.ctx, h)
		if err != nil {
			return err
		}
		if id == command.GetElementLocation {
			out.SetObject(rect.Point)
		} else {
			out.SetObject(rect.Size)
		}
		return nil
	case command.GetElementCSSValue:
		return w.elementString(out, in.Element, func(ctx context.Context, h Handle) (string, error) {
			return w.browser.CSSValue(ctx, h, in.Name)
		})
	case command.ElementEquals:
		a, err := w.resolve(in.Element)
		if err != nil {
			return err
		}
		b, err := w.resolve(in.Other)
		if err != nil {
			return err
		}
		eq, err := w.browser.Equal(w.ctx, a, b)
		if err != nil {
			return err
		}
		out.SetBoolean(eq)
		return nil

	// -- Element actions --
	case command.ClickElement:
		return w.elementAction(in.Element, w.browser.Click, true)
	case command.SubmitElement:
		return w.elementAction(in.Element, w.browser.Submit, true)
	case command.ClearElement:
		return w.elementAction(in.Element, w.browser.Clear, false)
	case command.SendKeysToElement:
		return w.elementAction(in.Element, func(ctx context.Context, h Handle) error {
			return w.browser.SendKeys(ctx, h, in.Text, w.speed.KeyDelay())
		}, false)

	// -- Cookies --
	case command.GetAllCookies:
		cookies, err := w.browser.Cookies(w.ctx)
		if err != nil {
			return err
		}
		if cookies == nil {
			cookies = []command.Cookie{}
		}
		out.SetObject(cookies)
		return nil
	case command.AddCookie:
		return w.addCookie(in.Cookie)
	case command.DeleteAllCookies:
		return w.browser.DeleteCookies(w.ctx, "")
	case command.DeleteCookie:
		if in.Name == "" {
			return command.Errorf(command.InvalidArgument, "missing cookie name")
		}
		return w.browser.DeleteCookies(w.ctx, in.Name)

	// -- Frames and windows --
	case command.SwitchToFrame:
		return w.switchToFrame(in.Frame)
	case command.SwitchToParentFrame:
		w.framePath = parentFrame(w.framePath)
		return nil
	case command.SwitchToWindow:
		if in.Text == "" {
			return command.Errorf(command.InvalidArgument, "missing window handle")
		}
		if err := w.browser.SwitchWindow(w.ctx, in.Text); err != nil {
			return err
		}
		w.framePath = ""
		return nil
	case command.GetWindowHandle:
		handle := w.browser.Window()
		if handle == "" {
			return command.Errorf(command.NoSuchWindow, "the current window has been closed")
		}
		out.SetString(handle)
		return nil
	case command.GetWindowHandles:
		handles, err := w.browser.Windows(w.ctx)
		if err != nil {
			return err
		}
		out.SetStrings(handles)
		return nil
	case command.CloseWindow:
		if w.browser.Window() == "" {
			return command.Errorf(command.NoSuchWindow, "the current window has already been closed")
		}
		if err := w.browser.CloseWindow(w.ctx); err != nil {
			return err
		}
		w.framePath = ""
		return nil

	// -- Scripts --
	case command.ExecuteScript:
		return w.runScript(out, in, false)
	case command.ExecuteAsyncScript:
		return w.runScript(out, in, true)

	// -- Session state --
	case command.SetTimeouts:
		return w.timeouts.Set(in.Name, time.Duration(in.Number)*time.Millisecond)
	case command.ImplicitlyWait:
		return w.timeouts.Set(TimeoutImplicit, time.Duration(in.Number)*time.Millisecond)
	case command.SetScriptTimeout:
		return w.timeouts.Set(TimeoutScript, time.Duration(in.Number)*time.Millisecond)
	case command.GetSpeed:
		out.SetString(string(w.speed))
		return nil
	case command.SetSpeed:
		sp, err := ParseSpeed(in.Text)
		if err != nil {
			return err
		}
		w.speed = sp
		return nil

	default:
		return command.Errorf(command.UnsupportedOperation, "command %d has no handler", int(id))
	}
}

// get issues a navigation and returns without waiting for it. Completion is
// transferred to the pending slot before the request goes out, so the
// settle notification can never race ahead of the hand-off.
func (w *Worker) get(url string, guard *command.Guard) error {
	if strings.TrimSpace(url) == "" {
		return command.Errorf(command.InvalidArgument, "missing url")
	}
	if err := w.deferNavigation(command.Get, guard); err != nil {
		return err
	}
	w.beginNavigation()
	if err := w.browser.Navigate(w.ctx, url); err != nil {
		return err
	}
	// Poll once as soon as the loop is free, ahead of the first tick.
	w.wake()
	return nil
}

func (w *Worker) historyNavigation(nav func(ctx context.Context) error) error {
	w.beginNavigation()
	if err := nav(w.ctx); err != nil {
		return err
	}
	return w.awaitSettled()
}

func (w *Worker) stringResult(out *command.Outputs, get func(ctx context.Context) (string, error)) error {
	s, err := get(w.ctx)
	if err != nil {
		return err
	}
	out.SetString(s)
	return nil
}

func (w *Worker) resolve(id command.ElementID) (Handle, error) {
	return w.elements.resolve(id, w.browser.Window())
}

// find runs the locator, retrying for up to the implicit wait while nothing
// matches.
func (w *Worker) find(root Handle, loc command.Locator) ([]Handle, error) {
	var found []Handle
	probe := func(ctx context.Context) (bool, error) {
		hs, err := w.browser.Find(ctx, w.framePath, root, loc)
		if err != nil {
			return false, err
		}
		found = hs
		return len(hs) > 0, nil
	}

	if w.timeouts.ImplicitWait <= 0 {
		_, err := probe(w.ctx)
		return found, err
	}
	err := settle.Await(w.ctx, settle.Options{Timeout: w.timeouts.ImplicitWait, Interval: w.settleInterval}, probe)
	if errors.Is(err, settle.ErrTimeout) {
		return nil, nil
	}
	return found, err
}

func (w *Worker) findOne(out *command.Outputs, root Handle, loc command.Locator) error {
	hs, err := w.find(root, loc)
	if err != nil {
		return err
	}
	if len(hs) == 0 {
		return command.Errorf(command.NoSuchElement, "no element matches %s %q", loc.Using, loc.Value)
	}
	out.SetElement(w.elements.register(hs[0], w.browser.Window()))
	return nil
}

func (w *Worker) findMany(out *command.Outputs, root Handle, loc command.Locator) error {
	hs, err := w.find(root, loc)
	if err != nil {
		return err
	}
	out.SetElements(w.elements.registerAll(hs, w.browser.Window()))
	return nil
}

func (w *Worker) elementString(out *command.Outputs, id command.ElementID, get func(context.Context, Handle) (string, error)) error {
	h, err := w.resolve(id)
	if err != nil {
		return err
	}
	s, err := get(w.ctx, h)
	if err != nil {
		return err
	}
	out.SetString(s)
	return nil
}

func (w *Worker) elementBool(out *command.Outputs, id command.ElementID, get func(context.Context, Handle) (bool, error)) error {
	h, err := w.resolve(id)
	if err != nil {
		return err
	}
	b, err := get(w.ctx, h)
	if err != nil {
		return err
	}
	out.SetBoolean(b)
	return nil
}

func (w *Worker) attribute(out *command.Outputs, id command.ElementID, name string) error {
	if name == "" {
		return command.Errorf(command.InvalidArgument, "missing attribute name")
	}
	h, err := w.resolve(id)
	if err != nil {
		return err
	}
	v, ok, err := w.browser.Attribute(w.ctx, h, name)
	if err != nil {
		return err
	}
	if !ok {
		out.SetObject(nil)
		return nil
	}
	out.SetString(v)
	return nil
}

// elementAction runs act against the element. Actions that may navigate
// wait for every frame to settle before the command completes.
func (w *Worker) elementAction(id command.ElementID, act func(context.Context, Handle) error, mayNavigate bool) error {
	h, err := w.resolve(id)
	if err != nil {
		return err
	}
	if err := act(w.ctx, h); err != nil {
		return err
	}
	if !mayNavigate {
		return nil
	}
	return w.awaitSettled()
}

func (w *Worker) addCookie(c command.Cookie) error {
	if c.Name == "" {
		return command.Errorf(command.InvalidArgument, "cookie name must not be empty")
	}
	if err := w.browser.SetCookie(w.ctx, c); err != nil {
		var cmdErr *command.Error
		if errors.As(err, &cmdErr) {
			return err
		}
		return command.Errorf(command.UnableToSetCookie, "set cookie %q: %w", c.Name, err)
	}
	return nil
}

func (w *Worker) switchToFrame(sel command.FrameSelector) error {
	if sel.Kind == command.FrameTop {
		w.framePath = ""
		return nil
	}
	var elem Handle
	if sel.Kind == command.FrameElement {
		h, err := w.resolve(sel.Element)
		if err != nil {
			return err
		}
		elem = h
	}
	path, err := w.browser.ResolveFrame(w.ctx, w.framePath, sel, elem)
	if err != nil {
		return err
	}
	w.framePath = path
	return nil
}

// runScript runs a page script under the session's script timeout. Element
// ids in the arguments become handles and handles in the result become ids.
func (w *Worker) runScript(out *command.Outputs, in *command.Inputs, async bool) error {
	args, err := w.scriptArgs(in.Args)
	if err != nil {
		return err
	}
	timeout := w.timeouts.Script
	if timeout <= 0 {
		timeout = defaultScriptTimeout
	}
	ctx, cancel := context.WithTimeout(w.ctx, timeout)
	defer cancel()

	res, err := w.browser.Execute(ctx, Script{Body: in.Text, Args: args, Async: async, Frame: w.framePath})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && w.ctx.Err() == nil {
			return command.Errorf(command.ScriptTimeout, "script did not complete within %s", timeout)
		}
		return err
	}
	out.SetScript(w.scriptResult(res))
	return nil
}

const defaultScriptTimeout = 30 * time.Second

func (w *Worker) scriptArgs(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := w.toHandles(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (w *Worker) toHandles(v any) (any, error) {
	switch t := v.(type) {
	case command.ElementID:
		return w.resolve(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			c, err := w.toHandles(t[i])
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			c, err := w.toHandles(val)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	default:
		return v, nil
	}
}

func (w *Worker) scriptResult(v any) any {
	switch t := v.(type) {
	case Handle:
		return w.elements.register(t, w.browser.Window())
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = w.scriptResult(t[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = w.scriptResult(val)
		}
		return out
	default:
		return v
	}
}

// buildCapabilities merges what the client asked for under what the driver
// provides. Keys the driver sets always win.
func buildCapabilities(desired map[string]any, version string, t Timeouts) map[string]any {
	caps := make(map[string]any, len(desired)+8)
	for k, v := range desired {
		caps[k] = v
	}
	if version == "" {
		version = "unknown"
	}
	caps["browserName"] = "chrome"
	caps["version"] = version
	caps["platform"] = strings.ToUpper(runtime.GOOS)
	caps["javascriptEnabled"] = true
	caps["takesScreenshot"] = false
	caps["handlesAlerts"] = false
	caps["cssSelectorsEnabled"] = true
	caps["pageLoadTimeout"] = t.PageLoad.Milliseconds()
	return caps
}
