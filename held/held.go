// Package held tracks which keys and buttons are currently pressed.
package held

import "hotkeyd/platform"

// Tracker records the last seen state of every key code.
// A code stays held until a release for that exact code arrives.
type Tracker struct {
	keys map[platform.KeyCode]bool
}

func NewTracker() *Tracker {
	return &Tracker{keys: make(map[platform.KeyCode]bool)}
}

// Update sets the held flag for the event's code to its pressed state
func (t *Tracker) Update(ev platform.Event) {
	t.keys[ev.Code] = ev.Pressed
}

// IsHeld reports whether code is currently held
func (t *Tracker) IsHeld(code platform.KeyCode) bool {
	return t.keys[code]
}

// Set returns every code currently held
func (t *Tracker) Set() Set {
	s := make(Set)
	for code, down := range t.keys {
		if down {
			s[code] = struct{}{}
		}
	}
	return s
}

// Set is a snapshot of held codes
type Set map[platform.KeyCode]struct{}

// Contains reports whether every code is in the set
func (s Set) Contains(codes ...platform.KeyCode) bool {
	for _, c := range codes {
		if _, ok := s[c]; !ok {
			return false
		}
	}
	return true
}
