// internal/browser/keys.go
package browser

import (
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
)

// Wire protocol key codes occupy the Unicode private use area starting at
// U+E000. Modifier keys toggle; the null key releases every held modifier.
const (
	keyNull    = '\uE000'
	keyShift   = '\uE008'
	keyControl = '\uE009'
	keyAlt     = '\uE00A'
	keyMeta    = '\uE03D'
)

// wireKeys maps the non-modifier wire key codes to the runes chromedp's kb
// package knows how to dispatch.
var wireKeys = map[rune]string{
	'\uE001': kb.Cancel,
	'\uE002': kb.Help,
	'\uE003': kb.Backspace,
	'\uE004': kb.Tab,
	'\uE005': kb.Clear,
	'\uE006': kb.Enter,
	'\uE007': kb.Enter,
	'\uE00B': kb.Pause,
	'\uE00C': kb.Escape,
	'\uE00D': " ",
	'\uE00E': kb.PageUp,
	'\uE00F': kb.PageDown,
	'\uE010': kb.End,
	'\uE011': kb.Home,
	'\uE012': kb.ArrowLeft,
	'\uE013': kb.ArrowUp,
	'\uE014': kb.ArrowRight,
	'\uE015': kb.ArrowDown,
	'\uE016': kb.Insert,
	'\uE017': kb.Delete,
	'\uE018': ";",
	'\uE019': "=",
	'\uE01A': "0",
	'\uE01B': "1",
	'\uE01C': "2",
	'\uE01D': "3",
	'\uE01E': "4",
	'\uE01F': "5",
	'\uE020': "6",
	'\uE021': "7",
	'\uE022': "8",
	'\uE023': "9",
	'\uE024': "*",
	'\uE025': "+",
	'\uE026': ",",
	'\uE027': "-",
	'\uE028': ".",
	'\uE029': "/",
	'\uE031': kb.F1,
	'\uE032': kb.F2,
	'\uE033': kb.F3,
	'\uE034': kb.F4,
	'\uE035': kb.F5,
	'\uE036': kb.F6,
	'\uE037': kb.F7,
	'\uE038': kb.F8,
	'\uE039': kb.F9,
	'\uE03A': kb.F10,
	'\uE03B': kb.F11,
	'\uE03C': kb.F12,
}

// modifierKey describes the key events for a modifier toggle.
type modifierKey struct {
	bit     input.Modifier
	key     string
	code    string
	virtual int64
}

var modifierKeys = map[rune]modifierKey{
	keyShift:   {input.ModifierShift, "Shift", "ShiftLeft", 16},
	keyControl: {input.ModifierCtrl, "Control", "ControlLeft", 17},
	keyAlt:     {input.ModifierAlt, "Alt", "AltLeft", 18},
	keyMeta:    {input.ModifierMeta, "Meta", "MetaLeft", 91},
}

// stroke is one step of a key sequence: either a key to type under the
// modifiers held at that point, or a change to the held modifiers.
type stroke struct {
	// text is the key to type, in the form chromedp.KeyEvent accepts.
	text string
	// mods are the modifiers held while typing text.
	mods input.Modifier

	// press and release list modifier keys whose state changes at this step.
	press   []modifierKey
	release []modifierKey
}

// strokes translates a wire key sequence. Modifiers still held at the end
// are released by a final stroke.
func strokes(keys string) []stroke {
	var (
		out  []stroke
		held input.Modifier
		down []modifierKey
	)
	releaseAll := func() {
		if len(down) == 0 {
			return
		}
		out = append(out, stroke{release: down})
		down = nil
		held = 0
	}

	for _, r := range keys {
		if r == keyNull {
			releaseAll()
			continue
		}
		if m, ok := modifierKeys[r]; ok {
			if held&m.bit != 0 {
				held &^= m.bit
				kept := down[:0]
				for _, d := range down {
					if d.bit != m.bit {
						kept = append(kept, d)
					}
				}
				down = kept
				out = append(out, stroke{release: []modifierKey{m}})
			} else {
				held |= m.bit
				down = append(down, m)
				out = append(out, stroke{press: []modifierKey{m}})
			}
			continue
		}
		text := string(r)
		if mapped, ok := wireKeys[r]; ok {
			text = mapped
		}
		out = append(out, stroke{text: text, mods: held})
	}
	releaseAll()
	return out
}

func (m modifierKey) event(typ input.KeyType, held input.Modifier) *input.DispatchKeyEventParams {
	return input.DispatchKeyEvent(typ).
		WithKey(m.key).
		WithCode(m.code).
		WithWindowsVirtualKeyCode(m.virtual).
		WithModifiers(held)
}
