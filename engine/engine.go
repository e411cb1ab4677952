package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"hotkeyd/action"
	"hotkeyd/binding"
	"hotkeyd/config"
	"hotkeyd/held"
	"hotkeyd/platform"
)

// DefaultPace is the minimum duration of one loop iteration
const DefaultPace = 10 * time.Millisecond

// State is the loop's run state
type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Options are the read-only run options passed in from the command line
type Options struct {
	DryRun bool
	Pace   time.Duration
}

// Rules is an immutable compiled rule set and the snapshot it came from
type Rules struct {
	Bindings []binding.Binding
	Snapshot *config.Snapshot
	LoadedAt time.Time
}

// Trigger describes one action fired (or suppressed by dry run) for a binding
type Trigger struct {
	Binding  string
	Action   string
	Kind     action.Kind
	Device   string
	Key      string
	Started  time.Time
	Duration time.Duration
	Err      error
	DryRun   bool
}

// TriggerSink receives triggers after each action returns. Record runs on
// the loop goroutine and must not block.
type TriggerSink interface {
	Record(t Trigger)
}

// Engine matches input events against the active rules and dispatches actions.
// Matching and dispatch happen on the goroutine calling Run.
type Engine struct {
	opts     Options
	source   platform.Source
	compiler *binding.Compiler
	held     *held.Tracker
	rules    atomic.Pointer[Rules]
	state    atomic.Int32
	sinks    []TriggerSink
	rejected time.Time // modtime of the last config that failed to load
	started  time.Time
}

// New compiles the initial snapshot and returns an engine reading from source
func New(snap *config.Snapshot, source platform.Source, compiler *binding.Compiler, opts Options) *Engine {
	if opts.Pace <= 0 {
		opts.Pace = DefaultPace
	}
	e := &Engine{
		opts:     opts,
		source:   source,
		compiler: compiler,
		held:     held.NewTracker(),
		started:  time.Now(),
	}
	e.install(snap)
	return e
}

// AddSink registers a trigger sink. Call before Run.
func (e *Engine) AddSink(s TriggerSink) {
	e.sinks = append(e.sinks, s)
}

// Rules returns the active rule set. Safe to call from any goroutine.
func (e *Engine) Rules() *Rules {
	return e.rules.Load()
}

// State returns whether the loop is running
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Started returns when the engine was created
func (e *Engine) Started() time.Time {
	return e.started
}

func (e *Engine) install(snap *config.Snapshot) *Rules {
	r := &Rules{
		Bindings: e.compiler.Compile(snap),
		Snapshot: snap,
		LoadedAt: time.Now(),
	}
	e.rules.Store(r)
	return r
}

// Run processes events until ctx is cancelled, which returns nil, or the
// source fails, which returns its error.
func (e *Engine) Run(ctx context.Context) error {
	e.state.Store(int32(Running))
	defer e.state.Store(int32(Stopped))

	slog.Info("Event loop started", "bindings", len(e.Rules().Bindings), "dry_run", e.opts.DryRun)

	for {
		start := time.Now()

		ev, err := e.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Event loop stopped")
				return nil
			}
			return fmt.Errorf("event source failed: %w", err)
		}

		e.Handle(ctx, ev)
		e.ReloadIfNeeded()

		if wait := e.opts.Pace - time.Since(start); wait > 0 {
			select {
			case <-ctx.Done():
				slog.Info("Event loop stopped")
				return nil
			case <-time.After(wait):
			}
		}
	}
}

// Handle updates held state from ev and fires every matching binding in order.
// Events that are not key or button transitions are ignored.
func (e *Engine) Handle(ctx context.Context, ev platform.Event) int {
	if !ev.Actionable() {
		return 0
	}

	slog.Debug("Received event", "kind", ev.Kind, "key", platform.KeyName(ev.Code), "pressed", ev.Pressed, "device", ev.Device)
	before := e.held.Set()
	e.held.Update(ev)
	after := e.held.Set()

	// Actions outlive a shutdown request; they are never cancelled mid-flight
	dispatchCtx := context.WithoutCancel(ctx)

	fired := 0
	rules := e.rules.Load()
	for i := range rules.Bindings {
		b := &rules.Bindings[i]
		if !b.Triggered(ev, before, after) {
			continue
		}
		slog.Debug("Match for binding", "binding", b.Name, "key", platform.KeyName(ev.Code), "pressed", ev.Pressed)
		fired++
		for _, a := range b.Actions {
			e.dispatch(dispatchCtx, b, a, ev)
		}
	}
	return fired
}

func (e *Engine) dispatch(ctx context.Context, b *binding.Binding, a action.Action, ev platform.Event) {
	t := Trigger{
		Binding: b.Name,
		Action:  a.String(),
		Kind:    a.Kind(),
		Device:  ev.Device,
		Key:     platform.KeyName(ev.Code),
		Started: time.Now(),
		DryRun:  e.opts.DryRun,
	}

	slog.Info("Running action", "binding", b.Name, "action", a.String())
	if e.opts.DryRun {
		slog.Warn("Dry run enabled, not running action", "binding", b.Name)
	} else if err := a.Invoke(ctx); err != nil {
		t.Err = err
		if errors.Is(err, action.ErrTimeout) {
			slog.Warn("Timeout running action", "binding", b.Name, "action", a.String(), "error", err)
		} else {
			slog.Warn("Action failed", "binding", b.Name, "action", a.String(), "error", err)
		}
	}
	t.Duration = time.Since(t.Started)

	for _, s := range e.sinks {
		s.Record(t)
	}
}

// ReloadIfNeeded re-reads the config when its file changed. A config that
// fails to parse is logged and the current rules stay active.
func (e *Engine) ReloadIfNeeded() bool {
	cur := e.rules.Load()
	if !cur.Snapshot.NeedsReload() {
		return false
	}
	mod, err := config.ModTime(cur.Snapshot.Path)
	if err == nil && mod.Equal(e.rejected) {
		return false
	}

	slog.Info("Config file changed, reloading config", "path", cur.Snapshot.Path)
	snap, err := config.Load(cur.Snapshot.Path)
	if err != nil {
		slog.Warn("Error reloading config", "error", err)
		e.rejected = mod
		return false
	}

	e.rejected = time.Time{}
	r := e.install(snap)
	slog.Info("Config reloaded", "bindings", len(r.Bindings))
	return true
}
