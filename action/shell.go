package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	shellPath = "/bin/sh"

	// waitDelay bounds how long Wait lingers on inherited pipes after a kill
	waitDelay = 500 * time.Millisecond
)

// defaultTimeout applies when no positive timeout is configured, so a hung command cannot stall the loop
var defaultTimeout = 5 * time.Second

// ErrTimeout is wrapped by the DispatchError of a command killed for running too long
var ErrTimeout = errors.New("command timed out")

// ShellExec runs a command line through the shell with all standard streams discarded
type ShellExec struct {
	Command string
	Timeout time.Duration
}

func newShellExec(command string, timeout time.Duration) (*ShellExec, error) {
	if command == "" {
		return nil, &ParseError{Action: command, Reason: "empty command"}
	}
	slog.Debug("Building EXEC action", "command", command)
	return &ShellExec{Command: command, Timeout: timeout}, nil
}

// Invoke runs the command and waits for it, up to Timeout.
// A zero or negative Timeout uses the default. On timeout the command's whole process group is killed.
func (s *ShellExec) Invoke(ctx context.Context) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// nil Stdin/Stdout/Stderr connect to the null device
	cmd := exec.CommandContext(ctx, shellPath, "-c", s.Command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return &DispatchError{Action: s.Command, Err: fmt.Errorf("%w after %v", ErrTimeout, timeout)}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &DispatchError{Action: s.Command, Err: fmt.Errorf("non-zero return code %d", exitErr.ExitCode())}
	}
	if err != nil {
		return &DispatchError{Action: s.Command, Err: err}
	}

	slog.Debug("Executed command", "command", s.Command, "code", 0, "elapsed", elapsed)
	return nil
}

func (s *ShellExec) Kind() Kind     { return KindShellExec }
func (s *ShellExec) String() string { return s.Command }
