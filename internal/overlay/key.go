package overlay

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Key identifies a physical or virtual key.
//
// Values are X keysyms. Latin letters are folded to their uppercase keysym so
// that the press and the release of the same key compare equal regardless of
// the Shift state at either moment.
type Key uint32

// Well-known keys used by the controller and the built-in triggers.
const (
	KeyNone      Key = 0
	KeyBackspace Key = 0xff08
	KeyTab       Key = 0xff09
	KeyReturn    Key = 0xff0d
	KeyEscape    Key = 0xff1b
	KeyDelete    Key = 0xffff
	KeySpace     Key = 0x0020

	Key0 Key = 0x0030
	Key1 Key = 0x0031
	Key9 Key = 0x0039
)

// IsDigit reports whether k is one of the top-row digit keys 0-9.
func (k Key) IsDigit() bool {
	return k >= Key0 && k <= Key9
}

// String returns a short human-readable name for logging.
func (k Key) String() string {
	switch k {
	case KeyNone:
		return "None"
	case KeyBackspace:
		return "Backspace"
	case KeyTab:
		return "Tab"
	case KeyReturn:
		return "Return"
	case KeyEscape:
		return "Escape"
	case KeyDelete:
		return "Delete"
	case KeySpace:
		return "Space"
	}
	if k > 0x20 && k < 0x7f {
		return string(rune(k))
	}
	return fmt.Sprintf("0x%x", uint32(k))
}

var keyNames = map[string]Key{
	"backspace": KeyBackspace,
	"tab":       KeyTab,
	"return":    KeyReturn,
	"enter":     KeyReturn,
	"escape":    KeyEscape,
	"esc":       KeyEscape,
	"delete":    KeyDelete,
	"space":     KeySpace,
}

// ParseKey parses a key name as used in configuration files: one of the
// named keys above (case-insensitive) or a single printable ASCII character.
func ParseKey(name string) (Key, error) {
	if k, ok := keyNames[strings.ToLower(name)]; ok {
		return k, nil
	}
	if len(name) == 1 && name[0] > 0x20 && name[0] < 0x7f {
		return Key(unicode.ToUpper(rune(name[0]))), nil
	}
	return KeyNone, fmt.Errorf("unknown key name %q", name)
}

// Modifiers represents modifier key state.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModControl
	ModAlt
	ModMeta
	ModCapsLock
)

// ModNone indicates that no modifier is held.
const ModNone Modifiers = 0

// Has returns true if m contains mod.
func (m Modifiers) Has(mod Modifiers) bool {
	return m&mod != 0
}

// ShiftOnly reports whether m is empty or holds nothing but Shift.
// Caps Lock is a latched state rather than a held modifier and is ignored.
func (m Modifiers) ShiftOnly() bool {
	held := m &^ ModCapsLock
	return held == ModNone || held == ModShift
}

// EventKind is the type of input event a trigger can consume.
type EventKind int

const (
	// EventKeyPress is a physical or virtual key press.
	EventKeyPress EventKind = iota
	// EventKeyRelease is a physical or virtual key release.
	EventKeyRelease
	// EventPreeditChanged means the composing text changed.
	EventPreeditChanged
	// EventTextCommitted means text was committed to the input field.
	EventTextCommitted
	// EventTimerExpired means a hold timer requested by a trigger fired.
	EventTimerExpired
)

func (k EventKind) String() string {
	switch k {
	case EventKeyPress:
		return "KeyPress"
	case EventKeyRelease:
		return "KeyRelease"
	case EventPreeditChanged:
		return "PreeditChanged"
	case EventTextCommitted:
		return "TextCommitted"
	case EventTimerExpired:
		return "TimerExpired"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// KeyEvent is a key press or release as delivered by the input-event source.
type KeyEvent struct {
	// Key identifies the key.
	Key Key

	// Modifiers holds the modifier state at the time of the event.
	Modifiers Modifiers

	// Text is the text the key produces, if any.
	Text string

	// AutoRepeat is set for hardware auto-repeat events. The IBus path never
	// sets it; repeats there are detected by the controller instead.
	AutoRepeat bool
}

// Valid reports whether the event identifies a key at all.
func (e KeyEvent) Valid() bool {
	return e.Key != KeyNone
}

// SingleRune returns the event text as a rune when it is exactly one
// character long.
func (e KeyEvent) SingleRune() (rune, bool) {
	if e.Text == "" || utf8.RuneCountInString(e.Text) != 1 {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(e.Text)
	if r == utf8.RuneError {
		return 0, false
	}
	return r, true
}
