package action

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Kind selects how an action is invoked
type Kind int

const (
	KindRemoteCall Kind = iota
	KindShellExec
	KindNoop
)

func (k Kind) String() string {
	switch k {
	case KindRemoteCall:
		return "dbus"
	case KindShellExec:
		return "exec"
	default:
		return "noop"
	}
}

const typeSep = ":"

var prefixes = map[string]Kind{
	"dbus": KindRemoteCall,
	"exec": KindShellExec,
}

// Action is a parsed, stateless effect. Invoke returns failures for the caller
// to log; it never panics on dispatch errors.
type Action interface {
	Invoke(ctx context.Context) error
	Kind() Kind
	String() string
}

// ParseError is returned for an action string that cannot be built
type ParseError struct {
	Action string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid action %q: %s", e.Action, e.Reason)
}

// DispatchError wraps a failure raised while invoking an action
type DispatchError struct {
	Action string
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("action %q failed: %v", e.Action, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Env carries what actions need at invocation time
type Env struct {
	Bus         Bus
	ExecTimeout time.Duration
}

// Parse builds an action from "<type>:<body>". A missing or unknown type
// prefix means the whole string is a remote call body.
func Parse(s string, env Env) (Action, error) {
	s = strings.TrimSpace(s)
	kind := KindRemoteCall
	body := s
	if prefix, rest, ok := strings.Cut(s, typeSep); ok {
		if k, known := prefixes[strings.ToLower(prefix)]; known {
			kind = k
			body = rest
			slog.Debug("Using action type", "type", kind, "action", body)
		} else {
			slog.Debug("Using default action type", "type", kind, "action", body)
		}
	}

	switch kind {
	case KindShellExec:
		return newShellExec(body, env.ExecTimeout)
	default:
		return newRemoteCall(body, env.Bus)
	}
}

// MustParse parses s, falling back to a no-op that logs when invoked
func MustParse(s string, env Env) Action {
	a, err := Parse(s, env)
	if err != nil {
		slog.Warn("Error building action", "action", s, "error", err)
		return Noop{Source: s, Err: err}
	}
	return a
}

// Noop stands in for an action that failed to parse
type Noop struct {
	Source string
	Err    error
}

func (n Noop) Invoke(ctx context.Context) error {
	slog.Debug("Skipping invalid action", "action", n.Source, "error", n.Err)
	return nil
}

func (n Noop) Kind() Kind     { return KindNoop }
func (n Noop) String() string { return n.Source }
