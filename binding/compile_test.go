package binding

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hotkeyd/action"
	"hotkeyd/config"
	"hotkeyd/platform"
)

func loadSnapshot(t *testing.T, body string) *config.Snapshot {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	snap, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return snap
}

func mustLookup(t *testing.T, name string) platform.KeyCode {
	t.Helper()
	code, err := platform.LookupKey(name)
	if err != nil {
		t.Fatal(err)
	}
	return code
}

func TestCompileSimple(t *testing.T) {
	snap := loadSnapshot(t, `
[bindings.mute]
keycodes = ["KEY_F20"]
actions = ["dbus:org.example.Audio/mute"]
`)
	got := NewCompiler(action.Env{}).Compile(snap)
	if len(got) != 1 {
		t.Fatalf("got %d bindings, want 1", len(got))
	}
	b := got[0]
	if b.Name != "mute" || b.IsCombo() || !b.RequiredState || b.Device != "" {
		t.Errorf("binding = %s", b.String())
	}
	if b.Keycodes[0] != mustLookup(t, "KEY_F20") {
		t.Errorf("keycode = %d", b.Keycodes[0])
	}
	if len(b.Actions) != 1 || b.Actions[0].Kind() != action.KindRemoteCall {
		t.Errorf("actions = %v", b.Actions)
	}
}

func TestCompileExpansionOrder(t *testing.T) {
	snap := loadSnapshot(t, `
[general]
exec-timeout = 1500

[bindings.multi]
keycodes = ["KEY_A", "KEY_B:released"]
keycode-combos = [["KEY_LEFTCTRL:RELEASED", "KEY_C"]]
actions = ["exec:one", "exec:two"]
devices = ["dev1", "dev2"]

[bindings.last]
keycodes = ["BTN_LEFT:RELEASED"]
actions = ["exec:three"]
`)
	got := NewCompiler(action.Env{}).Compile(snap)

	// (2 keycodes + 1 combo) x 2 actions x 2 devices, then 1
	if len(got) != 13 {
		t.Fatalf("got %d bindings, want 13", len(got))
	}

	keyA := mustLookup(t, "KEY_A")
	keyB := mustLookup(t, "KEY_B")
	ctrl := mustLookup(t, "KEY_LEFTCTRL")
	keyC := mustLookup(t, "KEY_C")

	type row struct {
		device string
		codes  []platform.KeyCode
		state  bool
		action string
	}
	want := []row{
		{"dev1", []platform.KeyCode{keyA}, true, "one"},
		{"dev1", []platform.KeyCode{keyA}, true, "two"},
		{"dev1", []platform.KeyCode{keyB}, false, "one"},
		{"dev1", []platform.KeyCode{keyB}, false, "two"},
		{"dev1", []platform.KeyCode{ctrl, keyC}, true, "one"},
		{"dev1", []platform.KeyCode{ctrl, keyC}, true, "two"},
		{"dev2", []platform.KeyCode{keyA}, true, "one"},
	}
	for i, w := range want {
		b := got[i]
		if b.Device != w.device || b.RequiredState != w.state || b.Actions[0].String() != w.action {
			t.Errorf("binding[%d] = %s, want %+v", i, b.String(), w)
		}
		if len(b.Keycodes) != len(w.codes) {
			t.Fatalf("binding[%d] codes = %v, want %v", i, b.Keycodes, w.codes)
		}
		for j := range w.codes {
			if b.Keycodes[j] != w.codes[j] {
				t.Errorf("binding[%d] code[%d] = %d, want %d", i, j, b.Keycodes[j], w.codes[j])
			}
		}
	}

	last := got[12]
	if last.Name != "last" || last.RequiredState || last.Keycodes[0] != mustLookup(t, "BTN_LEFT") {
		t.Errorf("last = %s", last.String())
	}

	se, ok := got[0].Actions[0].(*action.ShellExec)
	if !ok {
		t.Fatalf("action = %T", got[0].Actions[0])
	}
	if se.Timeout != 1500*time.Millisecond {
		t.Errorf("exec timeout = %v, want 1.5s", se.Timeout)
	}
}

func TestCompileDropsOnlyBadEntries(t *testing.T) {
	snap := loadSnapshot(t, `
[bindings.partial]
keycodes = ["KEY_NOPE", "KEY_A", "MOUSE_1", "KEY_B:SIDEWAYS"]
keycode-combos = [["KEY_LEFTCTRL", "KEY_BOGUS"], ["KEY_LEFTCTRL", "KEY_X"]]
actions = ["exec:ok"]

[bindings.fine]
keycodes = ["KEY_Z"]
actions = ["exec:ok"]
`)
	got := NewCompiler(action.Env{}).Compile(snap)
	if len(got) != 3 {
		t.Fatalf("got %d bindings, want 3", len(got))
	}
	if got[0].Keycodes[0] != mustLookup(t, "KEY_A") {
		t.Errorf("first = %s", got[0].String())
	}
	if !got[1].IsCombo() {
		t.Errorf("second should be the valid combo: %s", got[1].String())
	}
	if got[2].Name != "fine" {
		t.Errorf("third = %s", got[2].String())
	}
}

func TestCompileNoKeys(t *testing.T) {
	snap := loadSnapshot(t, `
[bindings.nothing]
actions = ["exec:true"]
`)
	if got := NewCompiler(action.Env{}).Compile(snap); len(got) != 0 {
		t.Errorf("got %d bindings, want 0", len(got))
	}
}

func TestCompileInvalidActionIsNoop(t *testing.T) {
	snap := loadSnapshot(t, `
[bindings.bad]
keycodes = ["KEY_A"]
actions = ["dbus:"]
`)
	got := NewCompiler(action.Env{}).Compile(snap)
	if len(got) != 1 {
		t.Fatalf("got %d bindings, want 1", len(got))
	}
	if got[0].Actions[0].Kind() != action.KindNoop {
		t.Errorf("action kind = %v, want noop", got[0].Actions[0].Kind())
	}
}

func TestUnknownKeyError(t *testing.T) {
	c := NewCompiler(action.Env{})
	_, _, err := c.parseKeycode("KEY_DOES_NOT_EXIST")
	var uk *UnknownKeyError
	if !errors.As(err, &uk) {
		t.Fatalf("err = %v, want UnknownKeyError", err)
	}
	if uk.Name != "KEY_DOES_NOT_EXIST" {
		t.Errorf("Name = %q", uk.Name)
	}
}

func TestCustomLookup(t *testing.T) {
	c := &Compiler{Lookup: func(name string) (platform.KeyCode, error) {
		if name == "KEY_MAGIC" {
			return 999, nil
		}
		return 0, errors.New("nope")
	}}
	code, pressed, err := c.parseKeycode("KEY_MAGIC:released")
	if err != nil || code != 999 || pressed {
		t.Errorf("parseKeycode = %d, %v, %v", code, pressed, err)
	}
}

func TestCompileResolvesDeviceSymlink(t *testing.T) {
	dir := t.TempDir()
	node := filepath.Join(dir, "event7")
	if err := os.WriteFile(node, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "usb-Pad-event-kbd")
	if err := os.Symlink(node, link); err != nil {
		t.Fatal(err)
	}

	snap := loadSnapshot(t, `
[bindings.pad]
keycodes = ["KEY_A"]
actions = ["exec:true"]
devices = ["`+link+`", "Macro Pad", "/dev/input/does-not-exist"]
`)
	got := NewCompiler(action.Env{}).Compile(snap)
	if len(got) != 3 {
		t.Fatalf("got %d bindings, want 3", len(got))
	}
	want, _ := filepath.EvalSymlinks(node)
	if got[0].Device != want {
		t.Errorf("device = %q, want %q", got[0].Device, want)
	}
	if got[1].Device != "Macro Pad" || got[2].Device != "/dev/input/does-not-exist" {
		t.Errorf("devices = %q, %q", got[1].Device, got[2].Device)
	}
}
