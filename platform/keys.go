package platform

import (
	"fmt"
	"strings"

	"github.com/holoplot/go-evdev"
)

const (
	keyPrefix    = "KEY_"
	buttonPrefix = "BTN_"
)

// checkPrefix rejects names outside the keyboard (KEY_) and button (BTN_) tables
func checkPrefix(name string) error {
	if strings.HasPrefix(name, keyPrefix) || strings.HasPrefix(name, buttonPrefix) {
		return nil
	}
	return fmt.Errorf("unknown type for keycode: %s", name)
}

// LookupKey resolves a symbolic KEY_* or BTN_* name to its code
func LookupKey(name string) (KeyCode, error) {
	if err := checkPrefix(name); err != nil {
		return 0, err
	}
	code, ok := evdev.KEYFromString[name]
	if !ok {
		return 0, fmt.Errorf("unknown key: %s", name)
	}
	return KeyCode(code), nil
}

// KeyName returns the symbolic name for a code, for logging
func KeyName(code KeyCode) string {
	if name := evdev.CodeName(evdev.EV_KEY, evdev.EvCode(code)); name != "" && name != "UNKNOWN" {
		return name
	}
	return fmt.Sprintf("KEY_%d", code)
}

// Button code ranges from linux/input-event-codes.h
const (
	btnMisc        = 0x100
	btnRangeEnd    = 0x160 // KEY_OK
	btnTriggerLow  = 0x2c0
	btnTriggerHigh = 0x2e7
)

// KindOf classifies an EV_KEY code as a pointer button or keyboard key
func KindOf(code KeyCode) EventKind {
	if (code >= btnMisc && code < btnRangeEnd) || (code >= btnTriggerLow && code <= btnTriggerHigh) {
		return KindPointerButton
	}
	return KindKeyboardKey
}
