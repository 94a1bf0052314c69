// Package runnertest provides a fake runner.Runner for tests.
package runnertest

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/jvreagan/ssh-deploy/pkg/runner"
)

// Fake records every command it is asked to run and never spawns a process.
type Fake struct {
	mu   sync.Mutex
	cmds []runner.Command

	// FailOn returns a non-nil error to make the matching call fail.
	FailOn func(call int, cmd runner.Command) error

	// Output returns text written to the command's Stdout.
	Output func(cmd runner.Command) string
}

// Run implements runner.Runner.
func (f *Fake) Run(ctx context.Context, cmd runner.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	call := len(f.cmds)
	f.cmds = append(f.cmds, cmd)
	f.mu.Unlock()

	if f.FailOn != nil {
		if err := f.FailOn(call, cmd); err != nil {
			return err
		}
	}
	if f.Output != nil && cmd.Stdout != nil {
		if _, err := io.WriteString(cmd.Stdout, f.Output(cmd)); err != nil {
			return err
		}
	}
	return nil
}

// Commands returns a copy of the recorded commands in call order.
func (f *Fake) Commands() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]runner.Command, len(f.cmds))
	copy(out, f.cmds)
	return out
}

// Ran reports whether any recorded command has an argument containing substr.
func (f *Fake) Ran(substr string) bool {
	for _, cmd := range f.Commands() {
		if strings.Contains(cmd.String(), substr) {
			return true
		}
	}
	return false
}

// FailAt returns a FailOn func that fails the call with the given index.
func FailAt(index int, err error) func(int, runner.Command) error {
	return func(call int, _ runner.Command) error {
		if call == index {
			return err
		}
		return nil
	}
}

// ExitStatus builds the error a real runner returns for a non-zero exit.
func ExitStatus(cmd runner.Command, code int) error {
	return &runner.ExitError{Command: cmd.String(), Code: code}
}
