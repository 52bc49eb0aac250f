package engine

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{WorkDir: t.TempDir(), GracePeriod: time.Second}, logger)
}

func TestExecute_Echo(t *testing.T) {
	e := testEngine(t)

	res := e.Execute(context.Background(), Request{Command: "echo hello"})

	if res.Stdout != "hello\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "hello\n")
	}
	if res.Stderr != "" {
		t.Errorf("Stderr = %q, want empty", res.Stderr)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if res.State != StateCompleted {
		t.Errorf("State = %q, want %q", res.State, StateCompleted)
	}
}

func TestExecute_SplitsStreams(t *testing.T) {
	e := testEngine(t)

	res := e.Execute(context.Background(), Request{Command: "echo out; echo err 1>&2"})

	if res.Stdout != "out\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "out\n")
	}
	if res.Stderr != "err\n" {
		t.Errorf("Stderr = %q, want %q", res.Stderr, "err\n")
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestExecute_PreservesPartialLine(t *testing.T) {
	e := testEngine(t)

	res := e.Execute(context.Background(), Request{Command: "printf 'no newline'"})

	if res.Stdout != "no newline" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "no newline")
	}
}

func TestExecute_NonZeroExit(t *testing.T) {
	e := testEngine(t)

	res := e.Execute(context.Background(), Request{Command: "exit 3"})

	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if res.State != StateCompleted {
		t.Errorf("State = %q, want %q", res.State, StateCompleted)
	}
}

func TestExecute_ShellFeatures(t *testing.T) {
	// Pipes and redirection must work — the command line is shell-interpreted.
	e := testEngine(t)

	res := e.Execute(context.Background(), Request{Command: "echo one two | wc -w"})

	if strings.TrimSpace(res.Stdout) != "2" {
		t.Errorf("Stdout = %q, want %q", strings.TrimSpace(res.Stdout), "2")
	}
}

func TestExecute_Timeout(t *testing.T) {
	e := testEngine(t)

	start := time.Now()
	res := e.Execute(context.Background(), Request{Command: "sleep 10", Timeout: 500 * time.Millisecond})
	elapsed := time.Since(start)

	if res.ExitCode != TimeoutExitCode {
		t.Errorf("ExitCode = %d, want %d", res.ExitCode, TimeoutExitCode)
	}
	if res.State != StateTimedOut {
		t.Errorf("State = %q, want %q", res.State, StateTimedOut)
	}
	if !strings.Contains(res.Stderr, "timed out") {
		t.Errorf("Stderr = %q, want timeout notice", res.Stderr)
	}
	if elapsed > 5*time.Second {
		t.Errorf("returned after %s, want ~500ms", elapsed)
	}
}

func TestExecute_TimeoutPreservesPartialOutput(t *testing.T) {
	e := testEngine(t)

	res := e.Execute(context.Background(), Request{
		Command: "echo before; sleep 10",
		Timeout: 500 * time.Millisecond,
	})

	if res.Stdout != "before\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "before\n")
	}
	if res.ExitCode != TimeoutExitCode {
		t.Errorf("ExitCode = %d, want %d", res.ExitCode, TimeoutExitCode)
	}
}

func TestExecute_TimeoutKillsDescendants(t *testing.T) {
	// The whole process group must be gone: a background child keeping the
	// pipe open would otherwise block the stream drain long past the deadline.
	e := testEngine(t)

	start := time.Now()
	res := e.Execute(context.Background(), Request{
		Command: "sleep 30 & sleep 30",
		Timeout: 500 * time.Millisecond,
	})
	elapsed := time.Since(start)

	if res.ExitCode != TimeoutExitCode {
		t.Errorf("ExitCode = %d, want %d", res.ExitCode, TimeoutExitCode)
	}
	if elapsed > 5*time.Second {
		t.Errorf("returned after %s, descendants not terminated", elapsed)
	}
}

func TestExecute_NoTimeoutRunsUnbounded(t *testing.T) {
	e := testEngine(t)

	res := e.Execute(context.Background(), Request{Command: "sleep 0.2; echo done"})

	if res.Stdout != "done\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "done\n")
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestExecute_LaunchFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(Config{WorkDir: "/nonexistent/sanduku/workdir"}, logger)

	res := e.Execute(context.Background(), Request{Command: "echo hello"})

	if res.State != StateLaunchFailed {
		t.Fatalf("State = %q, want %q", res.State, StateLaunchFailed)
	}
	if res.ExitCode != LaunchFailureExitCode {
		t.Errorf("ExitCode = %d, want %d", res.ExitCode, LaunchFailureExitCode)
	}
	if res.Stdout != "" {
		t.Errorf("Stdout = %q, want empty", res.Stdout)
	}
	if !strings.HasPrefix(res.Stderr, "Failed to execute command:") {
		t.Errorf("Stderr = %q, want launch failure notice", res.Stderr)
	}
}

func TestExecute_EmptyCommand(t *testing.T) {
	e := testEngine(t)

	res := e.Execute(context.Background(), Request{Command: ""})

	if res.State != StateLaunchFailed {
		t.Errorf("State = %q, want %q", res.State, StateLaunchFailed)
	}
	if res.ExitCode == 0 {
		t.Error("ExitCode = 0, want non-zero")
	}
}

func TestExecute_ConcurrentIsolation(t *testing.T) {
	// Two identical concurrent runs must not cross-contaminate buffers.
	e := testEngine(t)

	var wg sync.WaitGroup
	results := make([]Result, 2)
	commands := []string{"echo alpha", "echo beta"}
	for i := range commands {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = e.Execute(context.Background(), Request{Command: commands[i]})
		}()
	}
	wg.Wait()

	if results[0].Stdout != "alpha\n" {
		t.Errorf("first Stdout = %q, want %q", results[0].Stdout, "alpha\n")
	}
	if results[1].Stdout != "beta\n" {
		t.Errorf("second Stdout = %q, want %q", results[1].Stdout, "beta\n")
	}
}

func TestExecute_LargeOutputCapped(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(Config{WorkDir: t.TempDir(), MaxOutputBytes: 1024}, logger)

	res := e.Execute(context.Background(), Request{Command: "yes x | head -n 10000"})

	if len(res.Stdout) > 1024 {
		t.Errorf("Stdout length = %d, want <= 1024", len(res.Stdout))
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestTimeoutMessage(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{2 * time.Second, "Command timed out after 2 seconds"},
		{60 * time.Second, "Command timed out after 60 seconds"},
		{1500 * time.Millisecond, "Command timed out after 1.5s"},
	}
	for _, tc := range tests {
		if got := timeoutMessage(tc.d); got != tc.want {
			t.Errorf("timeoutMessage(%s) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestAppendNotice(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		notice string
		want   string
	}{
		{"empty", "", "notice", "notice"},
		{"terminated", "err\n", "notice", "err\nnotice"},
		{"unterminated", "partial", "notice", "partial\nnotice"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := appendNotice(tc.stderr, tc.notice); got != tc.want {
				t.Errorf("appendNotice(%q, %q) = %q, want %q", tc.stderr, tc.notice, got, tc.want)
			}
		})
	}
}
