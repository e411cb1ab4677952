package main

import (
	"context"
	"fmt"
	"log/slog"

	"hotkeyd/action"
	"hotkeyd/binding"
	"hotkeyd/config"
	"hotkeyd/engine"
	"hotkeyd/platform"
	"hotkeyd/storage"
	"hotkeyd/web"
)

// Agent owns the daemon's collaborators and runs the event loop
type Agent struct {
	snap   *config.Snapshot
	source platform.Source
	bus    *action.SessionBus
	db     *storage.DB
	web    *web.Server
	engine *engine.Engine
}

// NewAgent loads the config and opens the input devices, session bus and,
// when configured, the history database and status server
func NewAgent(configPath string, opts engine.Options) (*Agent, error) {
	snap, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	slog.Info("Configuration loaded", "path", configPath, "bindings", len(snap.Bindings))

	a := &Agent{snap: snap}

	source, err := platform.OpenEvdev()
	if err != nil {
		return nil, fmt.Errorf("failed to open input devices: %w", err)
	}
	a.source = source
	slog.Info("Reading input devices", "devices", source.Devices())

	env := action.Env{}
	bus, err := action.ConnectSessionBus()
	if err != nil {
		// remote call actions will log dispatch errors instead
		slog.Warn("Session bus unavailable", "error", err)
	} else {
		a.bus = bus
		env.Bus = bus
	}

	a.engine = engine.New(snap, source, binding.NewCompiler(env), opts)

	if path := snap.General.History; path != "" {
		db, err := storage.Open(path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		a.db = db
		a.engine.AddSink(&historySink{db: db})
		slog.Info("Recording trigger history", "path", path, "session", db.Session())
	}

	if addr := snap.General.Listen; addr != "" {
		a.web = web.NewServer(addr, a.engine, a.db)
		a.engine.AddSink(a.web)
	}

	return a, nil
}

// Run starts the status server, if any, and blocks in the event loop
func (a *Agent) Run(ctx context.Context) error {
	defer a.Close()

	if a.web != nil {
		if err := a.web.Start(ctx); err != nil {
			return err
		}
	}

	return a.engine.Run(ctx)
}

// Close releases every collaborator; safe to call more than once
func (a *Agent) Close() {
	if a.web != nil {
		if err := a.web.Stop(); err != nil {
			slog.Warn("Failed to stop status server", "error", err)
		}
		a.web = nil
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
	if a.bus != nil {
		a.bus.Close()
		a.bus = nil
	}
	if a.source != nil {
		a.source.Close()
		a.source = nil
	}
}

// historySink writes each trigger to the history database
type historySink struct {
	db *storage.DB
}

func (h *historySink) Record(t engine.Trigger) {
	row := &storage.Trigger{
		Timestamp:  t.Started,
		Binding:    t.Binding,
		Action:     t.Action,
		Kind:       t.Kind.String(),
		Device:     t.Device,
		Key:        t.Key,
		DurationMs: t.Duration.Milliseconds(),
		Success:    t.Err == nil,
		DryRun:     t.DryRun,
	}
	if t.Err != nil {
		row.ErrorMessage = t.Err.Error()
	}
	if err := h.db.SaveTrigger(row); err != nil {
		slog.Warn("Failed to record trigger", "binding", t.Binding, "error", err)
	}
}
