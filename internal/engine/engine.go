// Package engine runs shell commands as child processes, capturing their
// standard output and standard error concurrently and enforcing optional
// wall-clock timeouts. It exposes two presentations of the same mechanism:
// Execute buffers everything and returns one result; Stream forwards each
// output line as it is produced, followed by a terminal done event.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// TimeoutExitCode is the sentinel exit code reported when an execution
	// is terminated by the timeout governor, regardless of the
	// signal-derived code the OS reports.
	TimeoutExitCode = 124

	// LaunchFailureExitCode is reported when the child process could not
	// be started at all.
	LaunchFailureExitCode = 1

	defaultShell       = "/bin/sh"
	defaultGracePeriod = 5 * time.Second

	// defaultMaxOutputBytes caps each buffered stream in batch mode to
	// prevent OOM from chatty commands. Streaming mode is uncapped — lines
	// are forwarded, not accumulated.
	defaultMaxOutputBytes = 1 << 20 // 1 MB
)

// State is the lifecycle state of one execution.
type State string

const (
	StatePending      State = "pending"
	StateRunning      State = "running"
	StateCompleted    State = "completed"
	StateTimedOut     State = "timed_out"
	StateLaunchFailed State = "launch_failed"
	StateCancelled    State = "cancelled"
)

// Request describes one command execution.
type Request struct {
	// Command is the shell command line, interpreted as `<shell> -c <command>`.
	Command string

	// Timeout bounds the execution wall-clock time. Zero = unbounded.
	Timeout time.Duration

	// WorkDir overrides the engine's working directory. Empty = engine default.
	WorkDir string
}

// Result is the terminal outcome of a batch execution. Produced exactly
// once per execution; partial output captured before a timeout is preserved.
type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	State    State         `json:"-"`
	Duration time.Duration `json:"-"`

	// Incomplete is set when both stream readers failed mid-execution,
	// meaning the captured output may be missing trailing data.
	Incomplete bool `json:"-"`
}

// Executor is the execution contract consumed by the gateways.
type Executor interface {
	Execute(ctx context.Context, req Request) Result
	Stream(ctx context.Context, req Request) <-chan Event
}

// Config configures the engine.
type Config struct {
	Shell          string        // Shell binary. Default: /bin/sh.
	WorkDir        string        // Working directory for child processes.
	GracePeriod    time.Duration // SIGTERM → SIGKILL escalation delay. Default: 5s.
	MaxOutputBytes int           // Per-stream batch buffer cap. Default: 1 MB.
}

// Engine launches child processes and drains their output. Each execution
// is fully private — handle, buffers, and reader goroutines are per-request,
// so concurrent executions need no coordination with each other.
type Engine struct {
	shell     string
	workDir   string
	grace     time.Duration
	maxOutput int
	logger    *slog.Logger
}

// New creates an Engine.
func New(cfg Config, logger *slog.Logger) *Engine {
	shell := cfg.Shell
	if shell == "" {
		shell = defaultShell
	}
	grace := cfg.GracePeriod
	if grace == 0 {
		grace = defaultGracePeriod
	}
	maxOutput := cfg.MaxOutputBytes
	if maxOutput == 0 {
		maxOutput = defaultMaxOutputBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		shell:     shell,
		workDir:   cfg.WorkDir,
		grace:     grace,
		maxOutput: maxOutput,
		logger:    logger,
	}
}

// Execute runs the command to completion and returns one Result built from
// the accumulated output buffers and the final exit code. Launch failures
// and timeouts are resolved into the Result — Execute never leaves the
// caller without a well-formed outcome.
func (e *Engine) Execute(ctx context.Context, req Request) Result {
	sink := newBatchSink(e.maxOutput)
	oc := e.run(ctx, req, sink.consume)

	res := Result{
		Stdout:     sink.stdoutString(),
		Stderr:     sink.stderrString(),
		ExitCode:   oc.exitCode,
		State:      oc.state,
		Duration:   oc.duration,
		Incomplete: oc.incomplete,
	}

	switch oc.state {
	case StateTimedOut:
		res.Stderr = appendNotice(res.Stderr, timeoutMessage(req.Timeout))
	case StateLaunchFailed:
		res.Stderr = appendNotice(res.Stderr, launchFailureMessage(oc.launchErr))
	}
	return res
}

// Stream runs the command and forwards each output line as an Event the
// moment its reader observes it. The returned channel yields zero or more
// stdout/stderr events, at most one error event, and — unless the caller's
// context is cancelled first — exactly one terminal done event, after which
// the channel is closed. Cancelling ctx terminates the child process group
// and releases all resources; no further events are sent to the gone caller.
func (e *Engine) Stream(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event, streamBuffer)

	go func() {
		defer close(out)

		send := func(ev Event) {
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}

		emit := func(c Chunk) {
			send(Event{Type: eventTypeFor(c.Stream), Data: c.Line})
		}

		oc := e.run(ctx, req, emit)

		// Caller disconnected: cleanup already done by run, stay silent.
		if ctx.Err() != nil {
			return
		}

		switch oc.state {
		case StateTimedOut:
			send(Event{Type: EventError, Data: timeoutMessage(req.Timeout)})
		case StateLaunchFailed:
			send(Event{Type: EventError, Data: launchFailureMessage(oc.launchErr)})
		}
		send(Event{Type: EventDone, ExitCode: oc.exitCode})
	}()

	return out
}

// timeoutMessage matches the wording callers depend on, expressed in whole
// seconds when the timeout is one.
func timeoutMessage(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("Command timed out after %d seconds", int(d/time.Second))
	}
	return fmt.Sprintf("Command timed out after %s", d)
}

func launchFailureMessage(err error) string {
	return fmt.Sprintf("Failed to execute command: %v", err)
}

// appendNotice appends a notice line to captured stderr, preserving any
// partial output already there.
func appendNotice(stderr, notice string) string {
	if stderr == "" {
		return notice
	}
	if stderr[len(stderr)-1] != '\n' {
		stderr += "\n"
	}
	return stderr + notice
}
