package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func newRunner(timeout time.Duration) *Runner {
	return &Runner{Timeout: timeout, MaxOutputLines: 100}
}

func TestEchoSucceeds(t *testing.T) {
	r := newRunner(30 * time.Second)

	res, err := r.Run(context.Background(), "echo hello", t.TempDir())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Success {
		t.Error("expected success")
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %v", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "hello") {
		t.Errorf("expected hello in stdout, got %q", res.Stdout)
	}
	if res.TimedOut {
		t.Error("expected timeout=false")
	}
}

func TestNonZeroExitIsNotError(t *testing.T) {
	r := newRunner(30 * time.Second)

	res, err := r.Run(context.Background(), "exit 3", t.TempDir())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Success {
		t.Error("expected success=false for exit 3")
	}
	if res.ExitCode == nil || *res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %v", res.ExitCode)
	}
}

func TestStderrCaptured(t *testing.T) {
	r := newRunner(30 * time.Second)

	res, err := r.Run(context.Background(), "echo oops 1>&2", t.TempDir())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(res.Stderr, "oops") {
		t.Errorf("expected oops in stderr, got %q", res.Stderr)
	}
}

func TestPipesWork(t *testing.T) {
	r := newRunner(30 * time.Second)

	res, err := r.Run(context.Background(), "printf 'b\\na\\nc\\n' | sort | head -n 1", t.TempDir())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Success {
		t.Errorf("expected pipeline success, stderr: %q", res.Stderr)
	}
}

func TestWorkingDirectoryHonored(t *testing.T) {
	r := newRunner(30 * time.Second)
	dir := t.TempDir()

	res, err := r.Run(context.Background(), "pwd", dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(res.Stdout, dir) {
		t.Errorf("expected %q in stdout, got %q", dir, res.Stdout)
	}
}

func TestTimeoutReportsPartialOutput(t *testing.T) {
	r := newRunner(300 * time.Millisecond)

	start := time.Now()
	res, err := r.Run(context.Background(), "echo started; sleep 10", t.TempDir())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout did not bound execution")
	}
	if !res.TimedOut {
		t.Error("expected timeout=true")
	}
	if res.ExitCode != nil {
		t.Errorf("expected nil exit code on timeout, got %d", *res.ExitCode)
	}
	if res.Success {
		t.Error("expected success=false on timeout")
	}
	if !strings.Contains(res.Stdout, "started") {
		t.Errorf("expected partial output captured, got %q", res.Stdout)
	}
}

func TestSpawnFailureIsDistinctError(t *testing.T) {
	r := &Runner{Shell: "/nonexistent/shell", Timeout: time.Second, MaxOutputLines: 10}

	_, err := r.Run(context.Background(), "echo hi", t.TempDir())
	if !errors.Is(err, ErrSpawn) {
		t.Errorf("expected ErrSpawn, got %v", err)
	}
}

func TestTruncationExactlyAtLimit(t *testing.T) {
	r := &Runner{Timeout: 30 * time.Second, MaxOutputLines: 5}

	res, err := r.Run(context.Background(), "seq 1 20", t.TempDir())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(res.Stdout, "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 5 kept lines + marker, got %d: %q", len(lines), res.Stdout)
	}
	if lines[4] != "5" {
		t.Errorf("expected first 5 lines kept, line 5 is %q", lines[4])
	}
	if lines[5] != "... (truncated 15 lines)" {
		t.Errorf("unexpected marker: %q", lines[5])
	}
}

func TestOutputAtLimitUntouched(t *testing.T) {
	out := "1\n2\n3\n"
	if got := TruncateLines(out, 3); got != out {
		t.Errorf("output at limit must be untouched, got %q", got)
	}
	if got := TruncateLines(out, 10); got != out {
		t.Errorf("output below limit must be untouched, got %q", got)
	}
}

func TestTruncateLinesMarkerCount(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 12; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	got := TruncateLines(b.String(), 10)
	if !strings.HasSuffix(got, "... (truncated 2 lines)") {
		t.Errorf("expected marker with omitted count, got %q", got)
	}
}

func TestEmptyOutputUntouched(t *testing.T) {
	if got := TruncateLines("", 5); got != "" {
		t.Errorf("expected empty string unchanged, got %q", got)
	}
}
