// internal/browser/options.go
package browser

import (
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/scalpel-driver/internal/config"
)

// AllocatorOptions assembles the exec allocator flags for cfg. Extra args are
// given without the leading dashes, either as "name" or "name=value".
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		// Hardened kernels and containers refuse the sandbox's namespaces.
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("headless", cfg.Headless),
		// Pages restored from the back/forward cache never fire a load event.
		chromedp.Flag("disable-back-forward-cache", true),
	)
	if cfg.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.IgnoreCertErrors)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}

	for _, arg := range cfg.Args {
		name, value, ok := parseFlag(arg)
		if !ok {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseFlag splits a command line switch into the name chromedp expects and
// its value. Switches without a value are boolean.
func parseFlag(arg string) (string, any, bool) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if arg == "" {
		return "", nil, false
	}
	name, value, hasValue := strings.Cut(arg, "=")
	if name == "" {
		return "", nil, false
	}
	if !hasValue {
		return name, true, true
	}
	return name, value, true
}
