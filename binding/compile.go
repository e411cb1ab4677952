package binding

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"hotkeyd/action"
	"hotkeyd/config"
	"hotkeyd/platform"
)

const (
	stateSep      = ":"
	statePressed  = "PRESSED"
	stateReleased = "RELEASED"
)

// UnknownKeyError is returned for a key name that cannot be resolved
type UnknownKeyError struct {
	Name string
	Err  error
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("unknown keycode %q: %v", e.Name, e.Err)
}

func (e *UnknownKeyError) Unwrap() error { return e.Err }

// Compiler expands binding declarations into match rules
type Compiler struct {
	Env    action.Env
	Lookup func(name string) (platform.KeyCode, error)
}

// NewCompiler returns a compiler using the evdev key table
func NewCompiler(env action.Env) *Compiler {
	return &Compiler{Env: env, Lookup: platform.LookupKey}
}

// Compile expands every declaration in snapshot order. Within a declaration
// rules are ordered by device, then simple keycodes before combos, then action.
// An entry that fails to resolve is logged and dropped on its own.
func (c *Compiler) Compile(snap *config.Snapshot) []Binding {
	env := c.Env
	env.ExecTimeout = snap.General.ExecTimeout()

	var out []Binding
	for _, decl := range snap.Bindings {
		out = append(out, c.expand(decl, env)...)
	}
	slog.Debug("Generated bindings", "count", len(out))
	return out
}

func (c *Compiler) expand(decl config.Binding, env action.Env) []Binding {
	actions := make([]action.Action, 0, len(decl.Actions))
	for _, s := range decl.Actions {
		actions = append(actions, action.MustParse(s, env))
	}

	devices := make([]string, 0, len(decl.Devices))
	for _, d := range decl.Devices {
		devices = append(devices, resolveDevice(d))
	}
	if len(devices) == 0 {
		devices = []string{""}
	}

	type simple struct {
		code    platform.KeyCode
		pressed bool
	}
	var simples []simple
	for _, spec := range decl.Keycodes {
		code, pressed, err := c.parseKeycode(spec)
		if err != nil {
			slog.Warn("Skipping keycode", "binding", decl.Name, "keycode", spec, "error", err)
			continue
		}
		simples = append(simples, simple{code, pressed})
	}

	var combos [][]platform.KeyCode
	for _, group := range decl.KeycodeCombos {
		codes, err := c.parseCombo(group)
		if err != nil {
			slog.Warn("Skipping keycode combo", "binding", decl.Name, "combo", group, "error", err)
			continue
		}
		combos = append(combos, codes)
	}

	var out []Binding
	for _, device := range devices {
		for _, s := range simples {
			for _, a := range actions {
				out = append(out, Binding{
					Name:          decl.Name,
					Keycodes:      []platform.KeyCode{s.code},
					RequiredState: s.pressed,
					Actions:       []action.Action{a},
					Device:        device,
				})
			}
		}
		for _, codes := range combos {
			for _, a := range actions {
				out = append(out, Binding{
					Name:          decl.Name,
					Keycodes:      codes,
					RequiredState: true,
					Actions:       []action.Action{a},
					Device:        device,
				})
			}
		}
	}
	return out
}

// parseKeycode resolves "NAME" or "NAME:STATE"; STATE defaults to PRESSED
func (c *Compiler) parseKeycode(spec string) (platform.KeyCode, bool, error) {
	name, state, ok := strings.Cut(strings.TrimSpace(spec), stateSep)
	if !ok {
		state = statePressed
	}

	var pressed bool
	switch strings.ToUpper(state) {
	case statePressed:
		pressed = true
	case stateReleased:
		pressed = false
	default:
		return 0, false, fmt.Errorf("unknown state %q for keycode %s", state, name)
	}

	code, err := c.resolve(name)
	if err != nil {
		return 0, false, err
	}
	return code, pressed, nil
}

// parseCombo resolves every member of a combo; state suffixes are ignored
func (c *Compiler) parseCombo(group []string) ([]platform.KeyCode, error) {
	if len(group) == 0 {
		return nil, fmt.Errorf("empty combo")
	}
	codes := make([]platform.KeyCode, 0, len(group))
	for _, spec := range group {
		name, _, _ := strings.Cut(strings.TrimSpace(spec), stateSep)
		code, err := c.resolve(name)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// resolveDevice follows device node symlinks such as /dev/input/by-id/*
// so scopes compare against the event node path
func resolveDevice(device string) string {
	if !filepath.IsAbs(device) {
		return device
	}
	target, err := filepath.EvalSymlinks(device)
	if err != nil {
		return device
	}
	return target
}

func (c *Compiler) resolve(name string) (platform.KeyCode, error) {
	lookup := c.Lookup
	if lookup == nil {
		lookup = platform.LookupKey
	}
	code, err := lookup(name)
	if err != nil {
		return 0, &UnknownKeyError{Name: name, Err: err}
	}
	return code, nil
}
