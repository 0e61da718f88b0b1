// internal/command/channel.go
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// ErrChannelBusy is returned by Acquire when the previous command did not
// complete before the caller gave up waiting.
var ErrChannelBusy = errors.New("command channel busy")

// ElementID is the opaque element reference handed to clients.
type ElementID string

// WireElement is the JSON wire encoding of an element reference.
type WireElement struct {
	ID ElementID `json:"ELEMENT"`
}

// Strategy is a locator strategy name as sent by clients.
type Strategy string

const (
	ByID              Strategy = "id"
	ByName            Strategy = "name"
	ByClassName       Strategy = "class name"
	ByCSSSelector     Strategy = "css selector"
	ByTagName         Strategy = "tag name"
	ByLinkText        Strategy = "link text"
	ByPartialLinkText Strategy = "partial link text"
	ByXPath           Strategy = "xpath"
)

// Locator is a validated element query.
type Locator struct {
	Using Strategy
	Value string
}

// ParseLocator validates a client supplied strategy and value.
func ParseLocator(using, value string) (Locator, error) {
	switch s := Strategy(using); s {
	case ByID, ByName, ByTagName, ByLinkText, ByPartialLinkText:
		return Locator{Using: s, Value: value}, nil
	case ByClassName:
		if strings.TrimSpace(value) == "" {
			return Locator{}, Errorf(InvalidSelector, "class name must not be empty")
		}
		if strings.ContainsAny(strings.TrimSpace(value), " \t\n") {
			return Locator{}, Errorf(InvalidSelector, "compound class names not permitted: %q", value)
		}
		return Locator{Using: s, Value: strings.TrimSpace(value)}, nil
	case ByCSSSelector, ByXPath:
		if strings.TrimSpace(value) == "" {
			return Locator{}, Errorf(InvalidSelector, "%s must not be empty", s)
		}
		return Locator{Using: s, Value: value}, nil
	case "":
		return Locator{}, Errorf(InvalidArgument, "missing locator strategy")
	default:
		return Locator{}, Errorf(InvalidArgument, "unsupported locator strategy %q", using)
	}
}

// FrameKind selects how SwitchToFrame interprets its target.
type FrameKind int

const (
	FrameTop FrameKind = iota
	FrameIndex
	FrameName
	FrameElement
)

// FrameSelector is the target of a frame switch.
type FrameSelector struct {
	Kind    FrameKind
	Index   int
	Name    string
	Element ElementID
}

// Cookie is the wire representation of a browser cookie.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Path     string `json:"path,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httpOnly"`
	Expiry   int64  `json:"expiry,omitempty"`
}

// Inputs carries the data a handler needs. Only the fields relevant to the
// posted command are populated.
type Inputs struct {
	// Text holds the URL, keys, script body, window handle or speed.
	Text string
	// Name holds an attribute, CSS property, cookie name or timeout type.
	Name    string
	Number  int64
	Element ElementID
	Other   ElementID
	Locator Locator
	Frame   FrameSelector
	Cookie  Cookie
	Args    []any
}

// Kind tags which field of Outputs holds the result.
type Kind int

const (
	KindNone Kind = iota
	KindString
	KindInteger
	KindBoolean
	KindElement
	KindElements
	KindStrings
	KindScript
	KindObject
)

// Outputs is a tagged union of the possible command results plus the error
// slot.
type Outputs struct {
	Kind     Kind
	String   string
	Integer  int64
	Boolean  bool
	Element  ElementID
	Elements []ElementID
	Strings  []string
	// Script holds a decoded script result; element references inside it
	// are ElementID values.
	Script any
	// Object holds any other JSON-encodable result.
	Object any

	Status  Status
	Message string
}

func (o *Outputs) SetString(s string) { o.Kind, o.String = KindString, s }
func (o *Outputs) SetInteger(n int64) { o.Kind, o.Integer = KindInteger, n }
func (o *Outputs) SetBoolean(b bool)  { o.Kind, o.Boolean = KindBoolean, b }
func (o *Outputs) SetElement(id ElementID) {
	o.Kind, o.Element = KindElement, id
}
func (o *Outputs) SetElements(ids []ElementID) {
	if ids == nil {
		ids = []ElementID{}
	}
	o.Kind, o.Elements = KindElements, ids
}
func (o *Outputs) SetStrings(s []string) {
	if s == nil {
		s = []string{}
	}
	o.Kind, o.Strings = KindStrings, s
}
func (o *Outputs) SetScript(v any) { o.Kind, o.Script = KindScript, v }
func (o *Outputs) SetObject(v any) { o.Kind, o.Object = KindObject, v }

// SetError records err in the error slot and drops any partial result.
func (o *Outputs) SetError(err error) {
	e := AsError(err)
	if e == nil {
		return
	}
	*o = Outputs{Status: e.Status, Message: e.Message}
}

// Err returns the recorded failure, or nil on success.
func (o *Outputs) Err() *Error {
	if o.Status == Success {
		return nil
	}
	return &Error{Status: o.Status, Message: o.Message}
}

// Value returns the result in its wire form.
func (o *Outputs) Value() any {
	switch o.Kind {
	case KindString:
		return o.String
	case KindInteger:
		return o.Integer
	case KindBoolean:
		return o.Boolean
	case KindElement:
		return WireElement{ID: o.Element}
	case KindElements:
		out := make([]WireElement, len(o.Elements))
		for i, id := range o.Elements {
			out[i] = WireElement{ID: id}
		}
		return out
	case KindStrings:
		return o.Strings
	case KindScript:
		return wireScriptValue(o.Script)
	case KindObject:
		return o.Object
	default:
		return nil
	}
}

func wireScriptValue(v any) any {
	switch t := v.(type) {
	case ElementID:
		return WireElement{ID: t}
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = wireScriptValue(t[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = wireScriptValue(val)
		}
		return out
	default:
		return v
	}
}

// Channel is the per-session record that carries one command across the
// boundary between an HTTP goroutine and the session's automation worker.
//
// Ownership and completion are tracked separately. The owner is whoever
// acquired the channel; it keeps it until it has read the outputs and called
// Release. The completion signal is set exactly when no command is in
// flight. Inputs are written only by the owner before the command is posted,
// Outputs only by the worker before Complete.
type Channel struct {
	Inputs  Inputs
	Outputs Outputs

	owner       chan struct{}
	completion  *Signal
	abandoned   atomic.Bool
	completions atomic.Int64
}

// NewChannel returns an idle channel.
func NewChannel() *Channel {
	return &Channel{
		owner:      make(chan struct{}, 1),
		completion: NewSignal(),
	}
}

// Acquire claims the channel for one command, clearing inputs and outputs.
// Callers queue behind the current owner until it releases the channel or
// ctx is done.
func (c *Channel) Acquire(ctx context.Context) error {
	select {
	case c.owner <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrChannelBusy, ctx.Err())
	}
	c.completion.Reset()
	c.Inputs = Inputs{}
	c.Outputs = Outputs{}
	return nil
}

// Complete fires the completion signal. It reports whether this call
// completed the command; a second call is a no-op. If the owner abandoned
// the command the channel is released here.
func (c *Channel) Complete() bool {
	if !c.completion.Set() {
		return false
	}
	c.completions.Add(1)
	if c.abandoned.CompareAndSwap(true, false) {
		c.release()
	}
	return true
}

// Release returns the channel after the owner has read the outputs.
func (c *Channel) Release() {
	c.release()
}

// Abandon gives up ownership without waiting for completion. The channel
// stays unavailable until the in-flight command completes.
func (c *Channel) Abandon() {
	c.abandoned.Store(true)
	if c.completion.IsSet() && c.abandoned.CompareAndSwap(true, false) {
		c.release()
	}
}

func (c *Channel) release() {
	select {
	case <-c.owner:
	default:
	}
}

// Wait blocks until the in-flight command completes or ctx is done.
func (c *Channel) Wait(ctx context.Context) error {
	return c.completion.Wait(ctx)
}

// Busy reports whether a command is in flight.
func (c *Channel) Busy() bool { return !c.completion.IsSet() }

// Completions counts unsignaled -> signaled transitions over the channel's
// lifetime.
func (c *Channel) Completions() int64 { return c.completions.Load() }
