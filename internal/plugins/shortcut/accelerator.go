package shortcut

import (
	"errors"
	"fmt"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
)

var ErrInvalidAccelerator = errors.New("invalid accelerator")

// Accelerator is a parsed key combination such as "CmdOrCtrl+Shift+K".
type Accelerator struct {
	Key      fyne.KeyName
	Modifier fyne.KeyModifier
}

var modifierNames = map[string]fyne.KeyModifier{
	"shift":            fyne.KeyModifierShift,
	"control":          fyne.KeyModifierControl,
	"ctrl":             fyne.KeyModifierControl,
	"alt":              fyne.KeyModifierAlt,
	"option":           fyne.KeyModifierAlt,
	"super":            fyne.KeyModifierSuper,
	"cmd":              fyne.KeyModifierSuper,
	"command":          fyne.KeyModifierSuper,
	"meta":             fyne.KeyModifierSuper,
	"commandorcontrol": fyne.KeyModifierShortcutDefault,
	"cmdorctrl":        fyne.KeyModifierShortcutDefault,
	"cmdorcontrol":     fyne.KeyModifierShortcutDefault,
	"commandorctrl":    fyne.KeyModifierShortcutDefault,
}

var namedKeys = map[string]fyne.KeyName{
	"space":     fyne.KeySpace,
	"enter":     fyne.KeyReturn,
	"return":    fyne.KeyReturn,
	"escape":    fyne.KeyEscape,
	"esc":       fyne.KeyEscape,
	"tab":       fyne.KeyTab,
	"backspace": fyne.KeyBackspace,
	"delete":    fyne.KeyDelete,
	"insert":    fyne.KeyInsert,
	"home":      fyne.KeyHome,
	"end":       fyne.KeyEnd,
	"pageup":    fyne.KeyPageUp,
	"pagedown":  fyne.KeyPageDown,
	"up":        fyne.KeyUp,
	"down":      fyne.KeyDown,
	"left":      fyne.KeyLeft,
	"right":     fyne.KeyRight,
	"f1":        fyne.KeyF1,
	"f2":        fyne.KeyF2,
	"f3":        fyne.KeyF3,
	"f4":        fyne.KeyF4,
	"f5":        fyne.KeyF5,
	"f6":        fyne.KeyF6,
	"f7":        fyne.KeyF7,
	"f8":        fyne.KeyF8,
	"f9":        fyne.KeyF9,
	"f10":       fyne.KeyF10,
	"f11":       fyne.KeyF11,
	"f12":       fyne.KeyF12,
}

// ParseAccelerator reads "Modifier+...+Key". Names are case-insensitive and
// at least one modifier is required.
func ParseAccelerator(s string) (Accelerator, error) {
	parts := strings.Split(s, "+")
	if len(parts) < 2 {
		return Accelerator{}, fmt.Errorf("%w: %q needs a modifier and a key", ErrInvalidAccelerator, s)
	}

	var acc Accelerator
	for _, part := range parts[:len(parts)-1] {
		mod, ok := modifierNames[strings.ToLower(strings.TrimSpace(part))]
		if !ok {
			return Accelerator{}, fmt.Errorf("%w: unknown modifier %q in %q", ErrInvalidAccelerator, part, s)
		}
		acc.Modifier |= mod
	}

	key, err := parseKey(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil {
		return Accelerator{}, fmt.Errorf("%w: %v in %q", ErrInvalidAccelerator, err, s)
	}
	acc.Key = key
	return acc, nil
}

func parseKey(s string) (fyne.KeyName, error) {
	if len(s) == 1 {
		c := strings.ToUpper(s)[0]
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			return fyne.KeyName(string(c)), nil
		}
	}
	if key, ok := namedKeys[strings.ToLower(s)]; ok {
		return key, nil
	}
	return "", fmt.Errorf("unknown key %q", s)
}

// String is the canonical form used as the registration key.
func (a Accelerator) String() string {
	var parts []string
	if a.Modifier&fyne.KeyModifierControl != 0 {
		parts = append(parts, "Control")
	}
	if a.Modifier&fyne.KeyModifierAlt != 0 {
		parts = append(parts, "Alt")
	}
	if a.Modifier&fyne.KeyModifierShift != 0 {
		parts = append(parts, "Shift")
	}
	if a.Modifier&fyne.KeyModifierSuper != 0 {
		parts = append(parts, "Super")
	}
	return strings.Join(append(parts, string(a.Key)), "+")
}

func (a Accelerator) Shortcut() *desktop.CustomShortcut {
	return &desktop.CustomShortcut{KeyName: a.Key, Modifier: a.Modifier}
}
