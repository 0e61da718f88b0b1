// internal/server/params.go
package server

import (
	"bytes"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalpel-driver/internal/command"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes caps request bodies. Scripts and key sequences are the
// largest legitimate payloads.
const maxBodyBytes = 8 << 20

// urlParams are the template parameters merged into Params.
var urlParams = []string{"sessionId", "id", "name", "propertyName", "other"}

// Params is the merged view of a request's URL parameters and JSON body.
type Params map[string]any

// readParams decodes the body, which may be empty, and overlays the URL
// parameters. A malformed body is an invalid argument.
func readParams(r *http.Request) (Params, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, command.Errorf(command.InvalidArgument, "reading request body: %v", err)
	}
	if len(body) > maxBodyBytes {
		return nil, command.Errorf(command.InvalidArgument, "request body exceeds %d bytes", maxBodyBytes)
	}
	p, err := parseBody(body)
	if err != nil {
		return nil, err
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for _, key := range urlParams {
			if v := rctx.URLParam(key); v != "" {
				p[key] = v
			}
		}
	}
	return p, nil
}

func parseBody(body []byte) (Params, error) {
	p := Params{}
	if len(bytes.TrimSpace(body)) == 0 {
		return p, nil
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, command.Errorf(command.InvalidArgument, "malformed JSON body: %v", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		if raw == nil {
			return p, nil
		}
		return nil, command.Errorf(command.InvalidArgument, "request body must be a JSON object")
	}
	for k, v := range obj {
		p[k] = v
	}
	return p, nil
}

func (p Params) has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns a string parameter. Absent parameters are "" unless
// required.
func (p Params) String(key string, required bool) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		if required {
			return "", command.Errorf(command.InvalidArgument, "missing parameter %q", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", command.Errorf(command.InvalidArgument, "parameter %q must be a string", key)
	}
	return s, nil
}

// Int returns a required integral number parameter.
func (p Params) Int(key string) (int64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, command.Errorf(command.InvalidArgument, "missing parameter %q", key)
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, command.Errorf(command.InvalidArgument, "parameter %q must be an integer", key)
	}
	return int64(f), nil
}

// elementRef reads the element id out of a {"ELEMENT": id} reference.
func elementRef(v any) (command.ElementID, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := m["ELEMENT"].(string)
	if !ok || id == "" {
		return "", false
	}
	return command.ElementID(id), true
}

// translate converts params into the inputs of id. It runs before the
// session is touched, so argument errors never reach the worker.
func translate(id command.ID, p Params) (command.Inputs, error) {
	var in command.Inputs
	var err error

	switch id {
	case command.FindChildElement, command.FindChildElements,
		command.GetElementText, command.GetElementTagName, command.GetElementAttribute,
		command.IsElementSelected, command.IsElementEnabled, command.IsElementDisplayed,
		command.GetElementLocation, command.GetElementSize, command.GetElementCSSValue,
		command.ElementEquals, command.ClickElement, command.SubmitElement,
		command.ClearElement, command.SendKeysToElement:
		s, err := p.String("id", true)
		if err != nil {
			return in, err
		}
		in.Element = command.ElementID(s)
	}

	switch id {
	case command.Get:
		in.Text, err = p.String("url", true)

	case command.FindElement, command.FindElements, command.FindChildElement, command.FindChildElements:
		in.Locator, err = locator(p)

	case command.GetElementAttribute:
		in.Name, err = p.String("name", true)
	case command.GetElementCSSValue:
		in.Name, err = p.String("propertyName", true)
	case command.ElementEquals:
		var other string
		other, err = p.String("other", true)
		in.Other = command.ElementID(other)

	case command.SendKeysToElement:
		in.Text, err = keys(p)

	case command.AddCookie:
		in.Cookie, err = cookie(p)
	case command.DeleteCookie:
		in.Name, err = p.String("name", true)

	case command.SwitchToFrame:
		in.Frame, err = frame(p)
	case command.SwitchToWindow:
		in.Text, err = windowHandle(p)

	case command.ExecuteScript, command.ExecuteAsyncScript:
		in.Text, err = p.String("script", true)
		if err == nil {
			in.Args, err = scriptArgs(p)
		}

	case command.SetTimeouts:
		in.Name, err = p.String("type", true)
		if err == nil {
			in.Number, err = p.Int("ms")
		}
	case command.ImplicitlyWait, command.SetScriptTimeout:
		in.Number, err = p.Int("ms")

	case command.SetSpeed:
		in.Text, err = p.String("speed", true)
	}
	return in, err
}

func locator(p Params) (command.Locator, error) {
	using, err := p.String("using", true)
	if err != nil {
		return command.Locator{}, err
	}
	value, err := p.String("value", true)
	if err != nil {
		return command.Locator{}, err
	}
	return command.ParseLocator(using, value)
}

// keys accepts the legacy array of strings or a plain "text" string.
func keys(p Params) (string, error) {
	if p.has("value") {
		arr, ok := p["value"].([]any)
		if !ok {
			return "", command.Errorf(command.InvalidArgument, "parameter %q must be an array of strings", "value")
		}
		var b strings.Builder
		for _, k := range arr {
			s, ok := k.(string)
			if !ok {
				return "", command.Errorf(command.InvalidArgument, "parameter %q must be an array of strings", "value")
			}
			b.WriteString(s)
		}
		return b.String(), nil
	}
	return p.String("text", true)
}

func cookie(p Params) (command.Cookie, error) {
	raw, ok := p["cookie"].(map[string]any)
	if !ok {
		return command.Cookie{}, command.Errorf(command.InvalidArgument, "parameter %q must be an object", "cookie")
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return command.Cookie{}, command.Errorf(command.InvalidArgument, "encoding cookie: %v", err)
	}
	var c struct {
		command.Cookie
		// Expiry arrives as a float from some clients.
		Expiry *float64 `json:"expiry"`
	}
	if err := json.Unmarshal(buf, &c); err != nil {
		return command.Cookie{}, command.Errorf(command.InvalidArgument, "malformed cookie: %v", err)
	}
	if c.Name == "" {
		return command.Cookie{}, command.Errorf(command.InvalidArgument, "cookie name must not be empty")
	}
	if c.Expiry != nil {
		c.Cookie.Expiry = int64(*c.Expiry)
	}
	return c.Cookie, nil
}

// frame maps the "id" parameter: null selects the top document, a number
// an index, a string a name or id, and an element reference its frame.
func frame(p Params) (command.FrameSelector, error) {
	v, ok := p["id"]
	if !ok {
		return command.FrameSelector{}, command.Errorf(command.InvalidArgument, "missing parameter %q", "id")
	}
	switch t := v.(type) {
	case nil:
		return command.FrameSelector{Kind: command.FrameTop}, nil
	case float64:
		if t < 0 || t != math.Trunc(t) || t > math.MaxInt32 {
			return command.FrameSelector{}, command.Errorf(command.InvalidArgument, "frame index must be a non-negative integer")
		}
		return command.FrameSelector{Kind: command.FrameIndex, Index: int(t)}, nil
	case string:
		return command.FrameSelector{Kind: command.FrameName, Name: t}, nil
	default:
		if id, ok := elementRef(v); ok {
			return command.FrameSelector{Kind: command.FrameElement, Element: id}, nil
		}
		return command.FrameSelector{}, command.Errorf(command.InvalidArgument, "unsupported frame id %v", v)
	}
}

func windowHandle(p Params) (string, error) {
	for _, key := range []string{"name", "handle"} {
		s, err := p.String(key, false)
		if err != nil {
			return "", err
		}
		if s != "" {
			return s, nil
		}
	}
	return "", command.Errorf(command.InvalidArgument, "missing window handle")
}

func scriptArgs(p Params) ([]any, error) {
	v, ok := p["args"]
	if !ok || v == nil {
		return []any{}, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, command.Errorf(command.InvalidArgument, "parameter %q must be an array", "args")
	}
	out := make([]any, len(arr))
	for i, a := range arr {
		out[i] = withElementIDs(a)
	}
	return out, nil
}

// withElementIDs replaces element references in script arguments with
// ElementID values the worker resolves.
func withElementIDs(v any) any {
	if id, ok := elementRef(v); ok {
		if m := v.(map[string]any); len(m) == 1 {
			return id
		}
	}
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = withElementIDs(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = withElementIDs(e)
		}
		return out
	default:
		return v
	}
}

// desiredCapabilities extracts the client's requested capabilities.
func desiredCapabilities(p Params) (map[string]any, error) {
	v, ok := p["desiredCapabilities"]
	if !ok || v == nil {
		return map[string]any{}, nil
	}
	caps, ok := v.(map[string]any)
	if !ok {
		return nil, command.Errorf(command.InvalidArgument, "desiredCapabilities must be an object")
	}
	return caps, nil
}
