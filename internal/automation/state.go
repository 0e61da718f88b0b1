// internal/automation/state.go
package automation

import (
	"strings"
	"time"

	"github.com/xkilldash9x/scalpel-driver/internal/command"
)

// Speed is the legacy input speed setting. It controls the pause between
// synthesized keystrokes.
type Speed string

const (
	SpeedFast   Speed = "FAST"
	SpeedMedium Speed = "MEDIUM"
	SpeedSlow   Speed = "SLOW"
)

// ParseSpeed accepts a speed name in any case.
func ParseSpeed(s string) (Speed, error) {
	switch sp := Speed(strings.ToUpper(strings.TrimSpace(s))); sp {
	case SpeedFast, SpeedMedium, SpeedSlow:
		return sp, nil
	default:
		return "", command.Errorf(command.InvalidArgument, "unknown speed %q, want FAST, MEDIUM or SLOW", s)
	}
}

// KeyDelay is the pause inserted between keystrokes.
func (s Speed) KeyDelay() time.Duration {
	switch s {
	case SpeedMedium:
		return 50 * time.Millisecond
	case SpeedSlow:
		return 200 * time.Millisecond
	default:
		return 0
	}
}

// Timeout type names accepted by the timeouts command.
const (
	TimeoutImplicit = "implicit"
	TimeoutPageLoad = "page load"
	TimeoutScript   = "script"
)

// Timeouts are the per-session waits.
type Timeouts struct {
	// ImplicitWait is how long element lookups retry before reporting no
	// such element.
	ImplicitWait time.Duration
	// PageLoad bounds every navigation settle.
	PageLoad time.Duration
	// Script bounds script execution.
	Script time.Duration
}

// Set updates the timeout named by kind.
func (t *Timeouts) Set(kind string, d time.Duration) error {
	if d < 0 {
		return command.Errorf(command.InvalidArgument, "timeout must not be negative: %s", d)
	}
	switch kind {
	case TimeoutImplicit:
		t.ImplicitWait = d
	case TimeoutPageLoad, "pageLoad":
		t.PageLoad = d
	case TimeoutScript:
		t.Script = d
	default:
		return command.Errorf(command.InvalidArgument, "unknown timeout type %q", kind)
	}
	return nil
}

// framePath helpers. Paths are dot-separated child indexes; empty is top.

func parentFrame(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return ""
}
