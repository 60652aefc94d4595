// Package commandtest provides a scripted command.Runner for tests.
package commandtest

import (
	"context"
	"sync"

	"github.com/cwygoda/vidbot/internal/command"
)

// Handler answers one invocation.
type Handler func(ctx context.Context, cmd command.Cmd) (command.Result, error)

// Runner records invocations and delegates to Handler.
type Runner struct {
	mu      sync.Mutex
	Handler Handler
	calls   []command.Cmd
}

// Run implements command.Runner.
func (r *Runner) Run(ctx context.Context, cmd command.Cmd) (command.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	h := r.Handler
	r.mu.Unlock()

	if h == nil {
		return command.Result{}, nil
	}
	return h(ctx, cmd)
}

// Calls returns a copy of the recorded invocations.
func (r *Runner) Calls() []command.Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]command.Cmd, len(r.calls))
	copy(out, r.calls)
	return out
}

// HasArg reports whether cmd carries arg.
func HasArg(cmd command.Cmd, arg string) bool {
	for _, a := range cmd.Args {
		if a == arg {
			return true
		}
	}
	return false
}

// ArgAfter returns the argument following flag, or "".
func ArgAfter(cmd command.Cmd, flag string) string {
	for i := 0; i < len(cmd.Args)-1; i++ {
		if cmd.Args[i] == flag {
			return cmd.Args[i+1]
		}
	}
	return ""
}
