package ime

import (
	"unicode"

	"kboverlay/internal/overlay"
)

// IBus key event state masks.
const (
	IBusShiftMask   uint32 = 1 << 0
	IBusLockMask    uint32 = 1 << 1
	IBusControlMask uint32 = 1 << 2
	IBusMod1Mask    uint32 = 1 << 3 // Alt
	IBusSuperMask   uint32 = 1 << 26
	IBusMetaMask    uint32 = 1 << 28
	IBusReleaseMask uint32 = 1 << 30
)

// Keysyms the engine handles specially.
const (
	keysymBackSpace  = 0xff08
	keysymTab        = 0xff09
	keysymReturn     = 0xff0d
	keysymEscape     = 0xff1b
	keysymDelete     = 0xffff
	keysymKPEnter    = 0xff8d
	keysymKP0        = 0xffb0
	keysymKP9        = 0xffb9
	keysymISOLeftTab = 0xfe20

	unicodeKeysymBase = 0x01000000
)

// IsRelease reports whether state carries the release flag.
func IsRelease(state uint32) bool {
	return state&IBusReleaseMask != 0
}

// ModifiersFromState converts an IBus state mask.
func ModifiersFromState(state uint32) overlay.Modifiers {
	var m overlay.Modifiers
	if state&IBusShiftMask != 0 {
		m |= overlay.ModShift
	}
	if state&IBusLockMask != 0 {
		m |= overlay.ModCapsLock
	}
	if state&IBusControlMask != 0 {
		m |= overlay.ModControl
	}
	if state&IBusMod1Mask != 0 {
		m |= overlay.ModAlt
	}
	if state&(IBusSuperMask|IBusMetaMask) != 0 {
		m |= overlay.ModMeta
	}
	return m
}

// KeyFromKeysym maps a keysym to an overlay key. Letters are folded to
// their uppercase keysym so press and release match across Shift changes.
func KeyFromKeysym(keyval uint32) overlay.Key {
	switch keyval {
	case keysymKPEnter:
		return overlay.KeyReturn
	case keysymISOLeftTab:
		return overlay.KeyTab
	}
	if keyval >= keysymKP0 && keyval <= keysymKP9 {
		return overlay.Key0 + overlay.Key(keyval-keysymKP0)
	}

	r := keyvalToRune(keyval)
	if r == 0 || !unicode.IsLower(r) {
		return overlay.Key(keyval)
	}
	upper := unicode.ToUpper(r)
	switch {
	case upper == r:
		return overlay.Key(keyval)
	case keyval < unicodeKeysymBase && upper <= 0xff:
		return overlay.Key(upper)
	case keyval < unicodeKeysymBase:
		// Latin-1 letter whose capital lies outside Latin-1 (ÿ).
		return overlay.Key(keyval)
	default:
		return overlay.Key(unicodeKeysymBase + uint32(upper))
	}
}

// keyvalToRune converts an X11 keysym to the rune it types, or 0.
func keyvalToRune(keyval uint32) rune {
	if keyval >= 0x20 && keyval <= 0x7e {
		return rune(keyval)
	}
	if keyval >= 0xa0 && keyval <= 0xff {
		return rune(keyval)
	}
	if keyval >= keysymKP0 && keyval <= keysymKP9 {
		return rune('0' + keyval - keysymKP0)
	}
	if keyval > unicodeKeysymBase && keyval <= unicodeKeysymBase+unicode.MaxRune {
		return rune(keyval - unicodeKeysymBase)
	}
	return 0
}

// TranslateKey builds the controller's key event from IBus arguments. The
// release flag is not part of the result; see IsRelease.
func TranslateKey(keyval, state uint32) overlay.KeyEvent {
	ev := overlay.KeyEvent{
		Key:       KeyFromKeysym(keyval),
		Modifiers: ModifiersFromState(state),
	}
	if r := keyvalToRune(keyval); r != 0 && unicode.IsPrint(r) {
		ev.Text = string(r)
	}
	return ev
}

// isModifierKeysym reports whether keyval is a bare modifier key such as
// Shift_L or ISO_Level3_Shift. Those only update the modifier state.
func isModifierKeysym(keyval uint32) bool {
	return (keyval >= 0xffe1 && keyval <= 0xffee) || (keyval >= 0xfe01 && keyval <= 0xfe0f)
}
