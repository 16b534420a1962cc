// Package runner executes validated command lines through a shell with
// a timeout bound and line-count output truncation.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ErrSpawn marks process-creation failures (binary not found,
// permission denied). Distinct from a non-zero exit code.
var ErrSpawn = errors.New("spawn failed")

// Result is the outcome of one execution. ExitCode is nil when the
// process was terminated on timeout or never reported a status.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode *int
	Success  bool
	TimedOut bool
	Duration time.Duration
}

// Runner runs command lines through a shell so that pipes and
// redirection work for legitimately allowed commands.
type Runner struct {
	// Shell is the interpreter, default /bin/sh.
	Shell string
	// Timeout bounds each run. The timer is anchored at successful
	// spawn, not at call time, so process-creation latency never
	// counts against the caller's budget.
	Timeout time.Duration
	// MaxOutputLines caps each captured stream; excess lines are
	// replaced by a truncation marker.
	MaxOutputLines int
}

// Run executes commandLine in dir. Exactly one of three terminal
// outcomes is reported: completed (Result with exit code), timed out
// (Result with TimedOut and nil exit code), or spawn failure (error
// wrapping ErrSpawn). The exit/timeout race resolves once: the timer
// is stopped on exit, and a late exit after timeout is reaped without
// touching the returned result.
//
// Timeout termination is a single SIGTERM with no forced-kill
// escalation; a child that ignores it continues detached.
func (r *Runner) Run(ctx context.Context, commandLine, dir string) (*Result, error) {
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", commandLine)
	cmd.Dir = dir

	var stdout, stderr lockedBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(r.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		duration := time.Since(start)
		code := 0
		if err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return nil, fmt.Errorf("wait: %w", err)
			}
			code = exitErr.ExitCode()
		}
		return &Result{
			Stdout:   TruncateLines(stdout.String(), r.MaxOutputLines),
			Stderr:   TruncateLines(stderr.String(), r.MaxOutputLines),
			ExitCode: &code,
			Success:  code == 0,
			Duration: duration,
		}, nil

	case <-timer.C:
		duration := time.Since(start)
		_ = cmd.Process.Signal(syscall.SIGTERM)
		// Reap the child if it ever exits; the result below is
		// already final and must not be resolved twice.
		go func() { <-done }()
		return &Result{
			Stdout:   TruncateLines(stdout.String(), r.MaxOutputLines),
			Stderr:   TruncateLines(stderr.String(), r.MaxOutputLines),
			TimedOut: true,
			Duration: duration,
		}, nil
	}
}

// TruncateLines keeps the first max lines of s and appends a marker
// stating the omitted count. Output at or below the limit is returned
// untouched.
func TruncateLines(s string, max int) string {
	if s == "" || max <= 0 {
		return s
	}
	trimmed := strings.TrimSuffix(s, "\n")
	lines := strings.Split(trimmed, "\n")
	if len(lines) <= max {
		return s
	}
	omitted := len(lines) - max
	return strings.Join(lines[:max], "\n") + "\n" + fmt.Sprintf("... (truncated %d lines)", omitted)
}

// lockedBuffer is a bytes.Buffer safe for the copy goroutines exec
// runs while the timeout path reads partial output.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
