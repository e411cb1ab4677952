package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	appName               = "global-hotkeys"
	defaultConfigFilename = "config.toml"
	defaultExecTimeoutMs  = 5000
	bindingsTable         = "bindings"
)

// General holds the [general] settings
type General struct {
	ExecTimeoutMs int    `toml:"exec-timeout"`
	History       string `toml:"history"`
	Listen        string `toml:"listen"`
}

// ExecTimeout returns the shell action timeout. Zero or negative values mean the default.
func (g General) ExecTimeout() time.Duration {
	if g.ExecTimeoutMs <= 0 {
		return defaultExecTimeoutMs * time.Millisecond
	}
	return time.Duration(g.ExecTimeoutMs) * time.Millisecond
}

// Binding is a raw [bindings.<name>] declaration
type Binding struct {
	Name          string     `toml:"-"`
	Keycodes      []string   `toml:"keycodes"`
	KeycodeCombos [][]string `toml:"keycode-combos"`
	Actions       []string   `toml:"actions"`
	Devices       []string   `toml:"devices"`
}

// Snapshot is an immutable parsed config file. Reloading produces a new Snapshot.
type Snapshot struct {
	Path     string
	ModTime  time.Time
	General  General
	Bindings []Binding // declaration order
}

// ParseError is returned when the config file is missing, unreadable or malformed
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse config %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type file struct {
	General  General                   `toml:"general"`
	Bindings map[string]toml.Primitive `toml:"bindings"`
}

func defaultGeneral() General {
	return General{ExecTimeoutMs: defaultExecTimeoutMs}
}

// DefaultPath returns $XDG_CONFIG_HOME/global-hotkeys/config.toml
func DefaultPath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, appName, defaultConfigFilename), nil
}

// Load reads and parses the config file at path.
// A binding table with invalid field types is logged and skipped; it does not fail the load.
func Load(path string) (*Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	f := file{General: defaultGeneral()}
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	snap := &Snapshot{
		Path:    path,
		ModTime: info.ModTime(),
		General: f.General,
	}

	skipped := make(map[string]bool)
	for _, name := range bindingOrder(md) {
		prim, ok := f.Bindings[name]
		if !ok {
			continue
		}
		b := Binding{Name: name}
		if err := md.PrimitiveDecode(prim, &b); err != nil {
			slog.Warn("Skipping malformed binding", "binding", name, "error", err)
			skipped[name] = true
			continue
		}
		snap.Bindings = append(snap.Bindings, b)
	}

	for _, key := range md.Undecoded() {
		if len(key) >= 2 && key[0] == bindingsTable && skipped[key[1]] {
			continue
		}
		slog.Warn("Unknown config key", "key", key.String())
	}

	return snap, nil
}

// bindingOrder returns binding names in the order they appear in the document
func bindingOrder(md toml.MetaData) []string {
	var names []string
	seen := make(map[string]bool)
	for _, key := range md.Keys() {
		if len(key) < 2 || key[0] != bindingsTable {
			continue
		}
		if !seen[key[1]] {
			seen[key[1]] = true
			names = append(names, key[1])
		}
	}
	return names
}

// ModTime returns the modification time of the file at path
func ModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// NeedsReload reports whether the file has been modified since the snapshot was loaded.
// A missing file (an editor mid-save) does not count as a change.
func (s *Snapshot) NeedsReload() bool {
	mod, err := ModTime(s.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Debug("Failed to stat config", "path", s.Path, "error", err)
		}
		return false
	}
	return mod.After(s.ModTime)
}
