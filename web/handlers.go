package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

type bindingView struct {
	Name    string   `json:"name"`
	Keys    []string `json:"keys"`
	Combo   bool     `json:"combo"`
	State   string   `json:"state,omitempty"`
	Device  string   `json:"device,omitempty"`
	Actions []string `json:"actions"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func queryInt(r *http.Request, name string, def, floor int) int {
	if s := r.URL.Query().Get(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= floor {
			return v
		}
	}
	return def
}

// handleStatus returns loop state, uptime and the active config
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rules := s.rules.Rules()
	response := map[string]any{
		"state":      s.rules.State().String(),
		"uptime":     time.Since(s.rules.Started()).Round(time.Second).String(),
		"bindings":   len(rules.Bindings),
		"config":     rules.Snapshot.Path,
		"loadedAt":   rules.LoadedAt.UTC().Format(time.RFC3339),
		"history":    s.db != nil,
		"configTime": rules.Snapshot.ModTime.UTC().Format(time.RFC3339),
	}

	writeJSON(w, response)
}

// handleBindings returns the compiled rules in evaluation order
func (s *Server) handleBindings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rules := s.rules.Rules()
	views := make([]bindingView, 0, len(rules.Bindings))
	for i := range rules.Bindings {
		b := &rules.Bindings[i]
		v := bindingView{
			Name:   b.Name,
			Keys:   b.KeyNames(),
			Combo:  b.IsCombo(),
			Device: b.Device,
		}
		if !v.Combo {
			v.State = "released"
			if b.RequiredState {
				v.State = "pressed"
			}
		}
		for _, a := range b.Actions {
			v.Actions = append(v.Actions, a.Kind().String()+":"+a.String())
		}
		views = append(views, v)
	}

	writeJSON(w, views)
}

// handleHistory returns paginated trigger history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "History is disabled", http.StatusNotFound)
		return
	}

	limit := queryInt(r, "limit", 50, 1)
	offset := queryInt(r, "offset", 0, 0)

	triggers, err := s.db.GetTriggers(limit, offset)
	if err != nil {
		slog.Error("Failed to get triggers", "error", err)
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}

	total, err := s.db.GetTriggerCount()
	if err != nil {
		slog.Error("Failed to get trigger count", "error", err)
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"triggers": triggers,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// handleStats returns per-binding statistics for the last N days
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "History is disabled", http.StatusNotFound)
		return
	}

	days := queryInt(r, "days", 7, 1)
	stats, err := s.db.GetBindingStats(days)
	if err != nil {
		slog.Error("Failed to get binding stats", "error", err)
		http.Error(w, "Failed to get statistics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"days":     days,
		"bindings": stats,
	})
}
