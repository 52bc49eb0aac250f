package engine

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// outcome is the internal terminal record shared by both execution modes.
type outcome struct {
	exitCode   int
	state      State
	duration   time.Duration
	incomplete bool
	launchErr  error
}

// run is the single mechanism under both modes: launch the child, drain
// both output streams concurrently into the mode's sink, supervise the
// deadline in parallel, then reap the process. All three activities make
// independent progress; neither stream drain is ever serialized behind
// the other. Every terminal path — natural exit, timeout, launch error,
// caller cancellation — converges here with the process reaped and both
// pipes drained or closed.
func (e *Engine) run(ctx context.Context, req Request, emit func(Chunk)) outcome {
	start := time.Now()

	if req.Command == "" {
		return outcome{
			exitCode:  LaunchFailureExitCode,
			state:     StateLaunchFailed,
			duration:  time.Since(start),
			launchErr: errEmptyCommand,
		}
	}

	h, err := e.launch(req)
	if err != nil {
		e.logger.Error("launch failed",
			slog.String("error", err.Error()),
		)
		return outcome{
			exitCode:  LaunchFailureExitCode,
			state:     StateLaunchFailed,
			duration:  time.Since(start),
			launchErr: err,
		}
	}

	e.logger.Info("execution started",
		slog.String("execution_id", h.id),
		slog.Int("pid", h.cmd.Process.Pid),
		slog.Duration("timeout", req.Timeout),
	)

	// Closed once the process has been reaped; stops the grace-period
	// escalation and the cancellation watcher.
	reaped := make(chan struct{})

	gov := newGovernor(req.Timeout)
	gov.arm(func() {
		e.logger.Warn("execution deadline elapsed, terminating process group",
			slog.String("execution_id", h.id),
			slog.Duration("timeout", req.Timeout),
		)
		h.terminate(e.grace, reaped)
	})

	// Caller cancellation (e.g. streaming client disconnect) is a second,
	// independent termination source with the same cleanup obligation.
	var cancelled atomic.Bool
	go func() {
		select {
		case <-ctx.Done():
			cancelled.Store(true)
			h.terminate(e.grace, reaped)
		case <-reaped:
		}
	}()

	var (
		seq       atomic.Uint64
		wg        sync.WaitGroup
		stdoutErr error
		stderrErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		stdoutErr = drain(h.stdout, StreamStdout, &seq, emit)
	}()
	go func() {
		defer wg.Done()
		stderrErr = drain(h.stderr, StreamStderr, &seq, emit)
	}()
	wg.Wait()

	// Both pipes are at end-of-stream; safe to reap.
	waitErr := h.cmd.Wait()
	close(reaped)
	gov.disarm()

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	state := StateCompleted
	switch {
	case gov.fired():
		state = StateTimedOut
		exitCode = TimeoutExitCode
	case cancelled.Load():
		state = StateCancelled
	}

	if stdoutErr != nil {
		e.logger.Warn("stdout reader failed mid-execution",
			slog.String("execution_id", h.id),
			slog.String("error", stdoutErr.Error()),
		)
	}
	if stderrErr != nil {
		e.logger.Warn("stderr reader failed mid-execution",
			slog.String("execution_id", h.id),
			slog.String("error", stderrErr.Error()),
		)
	}

	duration := time.Since(start)
	e.logger.Info("execution finished",
		slog.String("execution_id", h.id),
		slog.String("state", string(state)),
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", duration),
	)

	return outcome{
		exitCode:   exitCode,
		state:      state,
		duration:   duration,
		incomplete: stdoutErr != nil && stderrErr != nil,
	}
}
