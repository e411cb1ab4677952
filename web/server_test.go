package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"hotkeyd/action"
	"hotkeyd/binding"
	"hotkeyd/config"
	"hotkeyd/engine"
	"hotkeyd/storage"
)

type fakeRules struct {
	rules *engine.Rules
}

func (f *fakeRules) Rules() *engine.Rules { return f.rules }
func (f *fakeRules) State() engine.State  { return engine.Running }
func (f *fakeRules) Started() time.Time   { return time.Now().Add(-time.Minute) }

func newRules() *fakeRules {
	snap := &config.Snapshot{
		Path:    "/etc/hotkeyd/config.toml",
		ModTime: time.Now(),
		General: config.General{ExecTimeoutMs: 1000},
		Bindings: []config.Binding{
			{Name: "mute", Keycodes: []string{"KEY_F20"}, Actions: []string{"dbus:org.example.Audio/mute"}},
			{Name: "term", KeycodeCombos: [][]string{{"KEY_LEFTCTRL", "KEY_T"}}, Actions: []string{"exec:xterm"}, Devices: []string{"kbd"}},
		},
	}
	return &fakeRules{rules: &engine.Rules{
		Bindings: binding.NewCompiler(action.Env{}).Compile(snap),
		Snapshot: snap,
		LoadedAt: time.Now(),
	}}
}

func newTestServer(t *testing.T, db *storage.DB) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("127.0.0.1:0", newRules(), db)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
	})
	return s, ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHandleStatus(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var status map[string]any
	if code := getJSON(t, ts.URL+"/api/status", &status); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if status["state"] != "running" {
		t.Errorf("state = %v", status["state"])
	}
	if status["bindings"] != float64(2) {
		t.Errorf("bindings = %v", status["bindings"])
	}
	if status["history"] != false {
		t.Errorf("history = %v", status["history"])
	}
}

func TestStartBindsAddr(t *testing.T) {
	s := NewServer("127.0.0.1:0", newRules(), nil)
	if got := s.Addr(); got != "127.0.0.1:0" {
		t.Errorf("Addr() before Start = %q, want configured address", got)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	addr := s.Addr()
	if addr == "127.0.0.1:0" || !strings.HasPrefix(addr, "127.0.0.1:") {
		t.Fatalf("Addr() = %q, want bound port", addr)
	}

	var status map[string]any
	if code := getJSON(t, "http://"+addr+"/api/status", &status); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if status["state"] != "running" {
		t.Errorf("state = %v", status["state"])
	}
}

func TestHandleBindings(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var views []bindingView
	if code := getJSON(t, ts.URL+"/api/bindings", &views); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if len(views) != 2 {
		t.Fatalf("views = %+v", views)
	}
	if views[0].Name != "mute" || views[0].State != "pressed" || views[0].Keys[0] != "KEY_F20" {
		t.Errorf("mute = %+v", views[0])
	}
	if !views[1].Combo || views[1].Device != "kbd" || len(views[1].Keys) != 2 {
		t.Errorf("term = %+v", views[1])
	}
	if views[1].Actions[0] != "exec:xterm" {
		t.Errorf("term actions = %v", views[1].Actions)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, err := http.Post(ts.URL+"/api/bindings", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestHistoryDisabled(t *testing.T) {
	_, ts := newTestServer(t, nil)
	if code := getJSON(t, ts.URL+"/api/history", nil); code != http.StatusNotFound {
		t.Errorf("history status = %d, want 404", code)
	}
	if code := getJSON(t, ts.URL+"/api/stats", nil); code != http.StatusNotFound {
		t.Errorf("stats status = %d, want 404", code)
	}
}

func TestHistory(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	for i := 0; i < 3; i++ {
		if err := db.SaveTrigger(&storage.Trigger{Binding: "mute", Action: "a", Kind: "dbus", Success: true}); err != nil {
			t.Fatal(err)
		}
	}

	_, ts := newTestServer(t, db)

	var history struct {
		Triggers []storage.Trigger `json:"triggers"`
		Total    int               `json:"total"`
		Limit    int               `json:"limit"`
	}
	if code := getJSON(t, ts.URL+"/api/history?limit=2&offset=bad", &history); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(history.Triggers) != 2 || history.Total != 3 || history.Limit != 2 {
		t.Errorf("history = %+v", history)
	}

	var stats struct {
		Days     int                    `json:"days"`
		Bindings []storage.BindingStats `json:"bindings"`
	}
	if code := getJSON(t, ts.URL+"/api/stats?days=0", &stats); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if stats.Days != 7 || len(stats.Bindings) != 1 || stats.Bindings[0].TotalTriggers != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestWebSocketTriggerStream(t *testing.T) {
	s, ts := newTestServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for client registration")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.Record(engine.Trigger{
		Binding:  "mute",
		Action:   "org.example.Audio/mute",
		Kind:     action.KindRemoteCall,
		Key:      "KEY_F20",
		Started:  time.Now(),
		Duration: 3 * time.Millisecond,
		Err:      errors.New("no reply"),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type MessageType    `json:"type"`
		Data TriggerMessage `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != MessageTypeTrigger {
		t.Errorf("type = %q", msg.Type)
	}
	if msg.Data.Binding != "mute" || msg.Data.Kind != "dbus" || msg.Data.Success || msg.Data.Error != "no reply" {
		t.Errorf("data = %+v", msg.Data)
	}
	if msg.Data.DurationMs != 3 {
		t.Errorf("durationMs = %d", msg.Data.DurationMs)
	}
}
