package engine

import (
	"errors"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

var errEmptyCommand = errors.New("empty command")

// LaunchError reports that the child process could not be started at all
// (missing shell, bad working directory, resource exhaustion). Fatal for
// the request; resolved into a result with LaunchFailureExitCode.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string { return "starting command: " + e.Err.Error() }

func (e *LaunchError) Unwrap() error { return e.Err }

// handle owns one running child process and its two output pipes for the
// lifetime of the execution. Exactly one handle exists per in-flight
// request; the process is reaped before the handle is discarded.
type handle struct {
	id     string
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	termOnce sync.Once
}

// launch starts `<shell> -c <command>` in the requested working directory
// with independent stdout/stderr pipes and no interactive stdin. The child
// runs in its own process group so descendants can be terminated with it.
func (e *Engine) launch(req Request) (*handle, error) {
	dir := req.WorkDir
	if dir == "" {
		dir = e.workDir
	}

	cmd := exec.Command(e.shell, "-c", req.Command)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdout.Close()
		return nil, &LaunchError{Err: err}
	}

	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, &LaunchError{Err: err}
	}

	return &handle{
		id:     uuid.New().String(),
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

// terminate stops the child's entire process group: graceful SIGTERM
// first, escalating to SIGKILL if the process is not reaped within the
// grace period. Idempotent — the timeout governor and caller cancellation
// can both trigger it without double-terminating.
func (h *handle) terminate(grace time.Duration, reaped <-chan struct{}) {
	h.termOnce.Do(func() {
		pid := h.cmd.Process.Pid
		// Negative PID = signal the entire process group.
		_ = syscall.Kill(-pid, syscall.SIGTERM)
		select {
		case <-reaped:
		case <-time.After(grace):
			_ = syscall.Kill(-pid, syscall.SIGKILL)
		}
	})
}
