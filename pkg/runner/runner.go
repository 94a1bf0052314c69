// Package runner runs external commands (ssh, rsync) on behalf of the deployer.
// All process invocations go through the Runner interface so tests can
// substitute a fake without spawning processes or opening connections.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/jvreagan/ssh-deploy/pkg/logging"
)

// Runner runs one external command to completion.
type Runner interface {
	// Run starts the command, streams its output and waits for it to exit.
	// A non-zero exit status is reported as an *ExitError.
	Run(ctx context.Context, cmd Command) error
}

// Command describes a single process invocation.
type Command struct {
	// Executable name, resolved through PATH
	Name string

	// Arguments, not including Name
	Args []string

	// Working directory; empty means the current directory
	Dir string

	// Standard streams. Nil values inherit the current process's streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command the way it would be typed in a shell.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// ExitError is returned when a command exits with a non-zero status.
type ExitError struct {
	Command string
	Code    int
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with status %d", e.Command, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands as child processes using os/exec.
type ExecRunner struct {
	// Console receives an "Executing..." line before each command; may be nil.
	Console *logging.Console
}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner(console *logging.Console) *ExecRunner {
	return &ExecRunner{Console: console}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	if cmd.Name == "" {
		return fmt.Errorf("command name is required")
	}

	printable := logging.SanitizeString(cmd.String())
	if r.Console != nil {
		r.Console.Executing(printable)
	}
	logging.Debug("running command", "command", printable, "dir", cmd.Dir)

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = orReader(cmd.Stdin, os.Stdin)
	c.Stdout = orWriter(cmd.Stdout, os.Stdout)
	c.Stderr = orWriter(cmd.Stderr, os.Stderr)

	if err := c.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Command: printable, Code: exitErr.ExitCode(), Err: err}
		}
		return fmt.Errorf("failed to run %s: %w", cmd.Name, err)
	}
	return nil
}

func orReader(r, fallback io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return fallback
}

func orWriter(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
