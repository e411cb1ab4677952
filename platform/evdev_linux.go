//go:build linux

package platform

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/holoplot/go-evdev"
)

const (
	keyReleased = 0
	keyPressed  = 1
)

type evdevDevice struct {
	dev  *evdev.InputDevice
	path string
	name string
}

type readResult struct {
	event Event
	err   error
	path  string
}

// EvdevSource reads key and button events from every evdev device that reports EV_KEY
type EvdevSource struct {
	mu      sync.Mutex
	devices map[string]*evdevDevice
	results chan readResult
	done    chan struct{}
	once    sync.Once
}

// OpenEvdev opens all key-capable input devices. Devices that cannot be
// opened (usually permissions) are skipped with a warning.
func OpenEvdev() (*EvdevSource, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("failed to list input devices: %w", err)
	}

	s := &EvdevSource{
		devices: make(map[string]*evdevDevice),
		results: make(chan readResult, 64),
		done:    make(chan struct{}),
	}

	for _, p := range paths {
		dev, err := evdev.Open(p.Path)
		if err != nil {
			slog.Warn("Failed to open input device", "device", p.Path, "error", err)
			continue
		}
		if !slices.Contains(dev.CapableTypes(), evdev.EV_KEY) {
			dev.Close()
			continue
		}
		name, err := dev.Name()
		if err != nil {
			name = p.Name
		}
		s.devices[p.Path] = &evdevDevice{dev: dev, path: p.Path, name: name}
		slog.Debug("Opened input device", "device", p.Path, "name", name)
	}

	if len(s.devices) == 0 {
		return nil, ErrNoDevices
	}

	for _, d := range s.devices {
		go s.read(d)
	}

	return s, nil
}

// Devices returns the node paths currently being read
func (s *EvdevSource) Devices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.devices))
	for p := range s.devices {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

func (s *EvdevSource) read(d *evdevDevice) {
	for {
		ev, err := d.dev.ReadOne()
		r := readResult{path: d.path, err: err}
		if err == nil {
			r.event = convert(d, ev)
		}
		select {
		case s.results <- r:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func convert(d *evdevDevice, ev *evdev.InputEvent) Event {
	e := Event{
		Device:     d.path,
		DeviceName: d.name,
		Code:       KeyCode(ev.Code),
		Time:       time.Unix(int64(ev.Time.Sec), int64(ev.Time.Usec)*1000),
	}
	// Autorepeat (value 2) stays KindOther, the same as non-key events
	if ev.Type == evdev.EV_KEY && (ev.Value == keyReleased || ev.Value == keyPressed) {
		e.Kind = KindOf(e.Code)
		e.Pressed = ev.Value == keyPressed
	}
	return e
}

// Next blocks until an event arrives, the context is cancelled, or no devices remain
func (s *EvdevSource) Next(ctx context.Context) (Event, error) {
	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case r := <-s.results:
			if r.err == nil {
				return r.event, nil
			}
			if s.drop(r.path, r.err) == 0 {
				return Event{}, ErrNoDevices
			}
		}
	}
}

func (s *EvdevSource) drop(path string, err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devices[path]; ok {
		slog.Warn("Input device lost", "device", path, "name", d.name, "error", err)
		d.dev.Close()
		delete(s.devices, path)
	}
	return len(s.devices)
}

// Close closes every open device
func (s *EvdevSource) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		defer s.mu.Unlock()
		for path, d := range s.devices {
			d.dev.Close()
			delete(s.devices, path)
		}
	})
	return nil
}
