// internal/browser/context.go
package browser

import "context"

// combineContext derives a context from target that is also cancelled when op
// ends. target carries the chromedp executor; op carries the caller's
// deadline. Calling the returned cancel never affects target itself.
func combineContext(target, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(target)
	stop := context.AfterFunc(op, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
