// Package command runs the external download and encode tools.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Cmd describes one external invocation. A zero Timeout means no limit.
type Cmd struct {
	Name    string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// String renders the command line for logs.
func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result holds the captured output of a finished command.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes external commands. A non-zero exit is an error.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

// ErrTimeout is returned when a command exceeds its timeout.
var ErrTimeout = errors.New("command timed out")

const (
	stderrTailBytes = 2048
	waitDelay       = 2 * time.Second
)

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner creates a runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run starts cmd, waits for it and captures its output.
func (ExecRunner) Run(ctx context.Context, c Cmd) (Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	// yt-dlp spawns ffmpeg, which inherits the output pipes.
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && c.Timeout > 0 {
			return res, fmt.Errorf("%s: %w after %s", c.Name, ErrTimeout, c.Timeout)
		}
		return res, fmt.Errorf("%s failed: %w: %s", c.Name, err, tail(stderr.Bytes()))
	}
	return res, nil
}

func tail(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > stderrTailBytes {
		b = b[len(b)-stderrTailBytes:]
	}
	return string(b)
}
