// internal/command/errors.go
package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Status is a JSON wire protocol status code.
type Status int

const (
	Success              Status = 0
	NoSuchSession        Status = 6
	NoSuchElement        Status = 7
	NoSuchDocument       Status = 8
	UnsupportedOperation Status = 9
	StaleElement         Status = 10
	ElementNotVisible    Status = 11
	UnhandledNative      Status = 13
	ScriptError          Status = 17
	NavigationTimeout    Status = 21
	NoSuchWindow         Status = 23
	UnableToSetCookie    Status = 25
	ScriptTimeout        Status = 28
	InvalidSelector      Status = 32
	SessionNotCreated    Status = 33
	InvalidArgument      Status = 61
	// UnknownMethod shares the wire code of UnsupportedOperation but is
	// reported with a different error string and HTTP status.
	UnknownMethod Status = 1009
)

type statusInfo struct {
	code  int
	name  string
	httpS int
}

var statuses = map[Status]statusInfo{
	Success:              {0, "success", http.StatusOK},
	NoSuchSession:        {6, "no such session", http.StatusNotFound},
	NoSuchElement:        {7, "no such element", http.StatusNotFound},
	NoSuchDocument:       {8, "no such frame", http.StatusNotFound},
	UnsupportedOperation: {9, "unknown command", http.StatusNotFound},
	StaleElement:         {10, "stale element reference", http.StatusNotFound},
	ElementNotVisible:    {11, "element not visible", http.StatusBadRequest},
	UnhandledNative:      {13, "unknown error", http.StatusInternalServerError},
	ScriptError:          {17, "javascript error", http.StatusInternalServerError},
	NavigationTimeout:    {21, "timeout", http.StatusInternalServerError},
	NoSuchWindow:         {23, "no such window", http.StatusNotFound},
	UnableToSetCookie:    {25, "unable to set cookie", http.StatusInternalServerError},
	ScriptTimeout:        {28, "script timeout", http.StatusInternalServerError},
	InvalidSelector:      {32, "invalid selector", http.StatusBadRequest},
	SessionNotCreated:    {33, "session not created", http.StatusInternalServerError},
	InvalidArgument:      {61, "invalid argument", http.StatusBadRequest},
	UnknownMethod:        {9, "unknown method", http.StatusNotImplemented},
}

func (s Status) info() statusInfo {
	if i, ok := statuses[s]; ok {
		return i
	}
	return statuses[UnhandledNative]
}

// Code is the numeric status sent on the wire.
func (s Status) Code() int { return s.info().code }

// String is the wire-protocol error string, e.g. "no such element".
func (s Status) String() string { return s.info().name }

// HTTPStatus is the HTTP status code used when reporting s.
func (s Status) HTTPStatus() int { return s.info().httpS }

// Error is a failure that carries a wire-protocol status.
type Error struct {
	Status  Status
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Status.String()
	}
	return e.Status.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with a formatted message. A %w verb in format is
// honored so the cause stays reachable through errors.Is.
func Errorf(status Status, format string, args ...any) *Error {
	wrapped := fmt.Errorf(format, args...)
	return &Error{Status: status, Message: wrapped.Error(), Err: errors.Unwrap(wrapped)}
}

// AsError maps any error onto the wire taxonomy. Unknown failures become
// UnhandledNative; deadline expiry becomes NavigationTimeout.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var cmdErr *Error
	if errors.As(err, &cmdErr) {
		return cmdErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Status: NavigationTimeout, Message: err.Error(), Err: err}
	}
	return &Error{Status: UnhandledNative, Message: err.Error(), Err: err}
}
