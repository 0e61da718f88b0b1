// internal/browser/options_test.go
package browser

import (
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/scalpel-driver/internal/config"
)

func TestParseFlag(t *testing.T) {
	tests := []struct {
		arg   string
		name  string
		value any
		ok    bool
	}{
		{"--mute-audio", "mute-audio", true, true},
		{"mute-audio", "mute-audio", true, true},
		{"--lang=de-DE", "lang", "de-DE", true},
		{"  --proxy-server=http://127.0.0.1:8080 ", "proxy-server", "http://127.0.0.1:8080", true},
		{"--empty=", "empty", "", true},
		{"--", "", nil, false},
		{"", "", nil, false},
		{"--=value", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			name, value, ok := parseFlag(tt.arg)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.value, value)
		})
	}
}

func TestAllocatorOptions(t *testing.T) {
	base := len(chromedp.DefaultExecAllocatorOptions) + 4

	t.Run("Minimal", func(t *testing.T) {
		opts := AllocatorOptions(config.BrowserConfig{Headless: true})
		assert.Len(t, opts, base)
	})

	t.Run("EveryOption", func(t *testing.T) {
		opts := AllocatorOptions(config.BrowserConfig{
			DisableGPU:      true,
			IgnoreTLSErrors: true,
			ExecPath:        "/usr/bin/chromium",
			UserDataDir:     "/tmp/profile",
			WindowWidth:     800,
			WindowHeight:    600,
			Args:            []string{"--mute-audio", "--", "lang=en"},
		})
		// The bare "--" is dropped.
		assert.Len(t, opts, base+7)
	})

	t.Run("PartialWindowSizeIgnored", func(t *testing.T) {
		opts := AllocatorOptions(config.BrowserConfig{WindowWidth: 800})
		assert.Len(t, opts, base)
	})

	t.Run("DefaultsNotMutated", func(t *testing.T) {
		before := len(chromedp.DefaultExecAllocatorOptions)
		AllocatorOptions(config.BrowserConfig{DisableGPU: true})
		assert.Equal(t, before, len(chromedp.DefaultExecAllocatorOptions))
	})
}
