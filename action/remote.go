package action

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/godbus/dbus/v5"
)

const pathSep = "/"

// Bus invokes a no-argument method on a remote object
type Bus interface {
	Call(ctx context.Context, dest, path, method string) error
}

// RemoteCall invokes method on the object at path owned by namespace
type RemoteCall struct {
	Namespace string
	Path      string
	Method    string
	source    string
	bus       Bus
}

// newRemoteCall splits "<namespace>/<path...>/<method>". The namespace is the
// text before the first slash and the method the text after the last; the path
// is what remains once both are stripped from the ends.
func newRemoteCall(body string, bus Bus) (*RemoteCall, error) {
	if body == "" {
		return nil, &ParseError{Action: body, Reason: "empty remote call"}
	}
	if !strings.Contains(body, pathSep) {
		return nil, &ParseError{Action: body, Reason: "expected <namespace>/<path>/<method>"}
	}

	parts := strings.Split(body, pathSep)
	namespace := parts[0]
	method := parts[len(parts)-1]
	if namespace == "" || method == "" {
		return nil, &ParseError{Action: body, Reason: "missing namespace or method"}
	}

	path := strings.TrimPrefix(body, namespace)
	path = strings.TrimSuffix(path, method)
	path = strings.TrimRight(path, pathSep)
	if path == "" {
		path = pathSep
	}
	if !dbus.ObjectPath(path).IsValid() {
		return nil, &ParseError{Action: body, Reason: fmt.Sprintf("invalid object path %q", path)}
	}

	slog.Debug("Building DBUS action", "namespace", namespace, "path", path, "method", method)
	return &RemoteCall{
		Namespace: namespace,
		Path:      path,
		Method:    method,
		source:    body,
		bus:       bus,
	}, nil
}

func (r *RemoteCall) Invoke(ctx context.Context) error {
	if r.bus == nil {
		return &DispatchError{Action: r.source, Err: fmt.Errorf("no bus connection")}
	}
	if err := r.bus.Call(ctx, r.Namespace, r.Path, r.Method); err != nil {
		return &DispatchError{Action: r.source, Err: err}
	}
	return nil
}

func (r *RemoteCall) Kind() Kind     { return KindRemoteCall }
func (r *RemoteCall) String() string { return r.source }

// SessionBus calls methods over the D-Bus session bus
type SessionBus struct {
	conn *dbus.Conn
}

// ConnectSessionBus opens a shared connection to the session bus
func ConnectSessionBus() (*SessionBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &SessionBus{conn: conn}, nil
}

// Call invokes method with no arguments and discards the reply.
// The method may carry its interface as a dotted prefix.
func (b *SessionBus) Call(ctx context.Context, dest, path, method string) error {
	obj := b.conn.Object(dest, dbus.ObjectPath(path))
	call := obj.CallWithContext(ctx, method, 0)
	if call.Err != nil {
		return fmt.Errorf("calling %s on %s%s: %w", method, dest, path, call.Err)
	}
	return nil
}

// Close closes the bus connection
func (b *SessionBus) Close() error {
	return b.conn.Close()
}
