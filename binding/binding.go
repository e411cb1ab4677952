package binding

import (
	"fmt"
	"strings"

	"hotkeyd/action"
	"hotkeyd/held"
	"hotkeyd/platform"
)

// Binding is a compiled match rule. One key code makes a simple binding that
// fires on a transition to RequiredState; more than one makes a combo that
// matches while every code is held, whatever the triggering event was.
type Binding struct {
	Name          string
	Keycodes      []platform.KeyCode
	RequiredState bool // pressed; ignored for combos
	Actions       []action.Action
	Device        string // empty matches any device
}

// IsCombo reports whether the binding needs several keys held at once
func (b *Binding) IsCombo() bool {
	return len(b.Keycodes) > 1
}

// AppliesTo reports whether the event comes from the binding's device scope.
// A scope matches either the device node path or the device name.
func (b *Binding) AppliesTo(ev platform.Event) bool {
	return b.Device == "" || b.Device == ev.Device || b.Device == ev.DeviceName
}

// Matches evaluates the binding against an event and the held set that
// already includes that event
func (b *Binding) Matches(ev platform.Event, keys held.Set) bool {
	if len(b.Keycodes) == 0 || !b.AppliesTo(ev) {
		return false
	}

	if b.IsCombo() {
		return keys.Contains(b.Keycodes...)
	}
	return ev.Code == b.Keycodes[0] && ev.Pressed == b.RequiredState
}

// Triggered reports whether ev fires the binding. before and after are the
// held sets around ev. A combo fires only on the event that completes it, so
// further presses while it stays held do not repeat it.
func (b *Binding) Triggered(ev platform.Event, before, after held.Set) bool {
	if !b.Matches(ev, after) {
		return false
	}
	return !b.IsCombo() || !before.Contains(b.Keycodes...)
}

// KeyNames returns the symbolic names of the binding's codes
func (b *Binding) KeyNames() []string {
	names := make([]string, len(b.Keycodes))
	for i, c := range b.Keycodes {
		names[i] = platform.KeyName(c)
	}
	return names
}

func (b *Binding) String() string {
	keys := strings.Join(b.KeyNames(), "+")
	state := stateReleased
	if b.RequiredState {
		state = statePressed
	}
	if b.IsCombo() {
		state = "HELD"
	}
	var acts []string
	for _, a := range b.Actions {
		acts = append(acts, a.String())
	}
	return fmt.Sprintf("%s[%s:%s device=%q actions=%v]", b.Name, keys, state, b.Device, acts)
}
