package platform

import (
	"context"
	"errors"
	"time"
)

// KeyCode identifies a physical key or button
type KeyCode uint16

// EventKind represents the type of input event
type EventKind int

const (
	KindOther EventKind = iota
	KindKeyboardKey
	KindPointerButton
)

func (k EventKind) String() string {
	switch k {
	case KindKeyboardKey:
		return "keyboard-key"
	case KindPointerButton:
		return "pointer-button"
	default:
		return "other"
	}
}

// Event represents a single key or button transition from an input device
type Event struct {
	Kind       EventKind
	Device     string // device node path
	DeviceName string
	Code       KeyCode
	Pressed    bool
	Time       time.Time
}

// Actionable reports whether the event is a key or button transition
func (e Event) Actionable() bool {
	return e.Kind == KindKeyboardKey || e.Kind == KindPointerButton
}

// ErrNoDevices is returned by a Source once every device it was reading is gone
var ErrNoDevices = errors.New("no input devices available")

// Source provides a blocking stream of input events
type Source interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}
