package httpapi

import (
	"log/slog"
	"time"

	"github.com/jkaninda/okapi"

	"github.com/jkaninda/sanduku/internal/engine"
)

// ExecuteRequest is the JSON body for POST /execute and /execute/stream.
type ExecuteRequest struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"` // Seconds. 0 = server default.
	WorkDir string `json:"workdir,omitempty"` // Relative to the workspace. Empty = workspace root.
}

// ExecuteResponse is the JSON response for POST /execute.
type ExecuteResponse struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// SSEEvent is the payload of one server-sent event on /execute/stream.
type SSEEvent struct {
	Data     string `json:"data,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
}

// engineRequest validates the HTTP request and maps it onto the engine's
// request type. Returns a non-nil abort error when validation fails.
func (g *Gateway) engineRequest(c *okapi.Context, req *ExecuteRequest) (engine.Request, error) {
	if err := c.Bind(req); err != nil {
		return engine.Request{}, c.AbortBadRequest("invalid request body")
	}
	if req.Command == "" {
		return engine.Request{}, c.AbortBadRequest("command is required")
	}
	if req.Timeout < 0 {
		return engine.Request{}, c.AbortBadRequest("timeout must not be negative")
	}

	timeout := g.config.DefaultTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}

	workDir := ""
	if req.WorkDir != "" {
		resolved, err := g.ws.Resolve(req.WorkDir)
		if err != nil {
			return engine.Request{}, c.AbortBadRequest("workdir is outside the workspace")
		}
		workDir = resolved
	}

	return engine.Request{
		Command: req.Command,
		Timeout: timeout,
		WorkDir: workDir,
	}, nil
}

// handleExecute runs a command to completion and returns the buffered output.
// Timeouts and launch failures are reported inside the 200 response body —
// the command ran, its outcome is the payload.
func (g *Gateway) handleExecute(c *okapi.Context) error {
	if g.limiter != nil {
		release, err := g.limiter.Acquire(clientKey(c.Request()))
		if err != nil {
			return c.AbortTooManyRequests(err.Error())
		}
		defer release()
	}

	var req ExecuteRequest
	engineReq, err := g.engineRequest(c, &req)
	if err != nil {
		return err
	}

	correlationID := newCorrelationID()
	g.logger.Info("execute request",
		slog.String("correlation_id", correlationID),
		slog.Int("timeout_s", req.Timeout),
	)

	res := g.executor.Execute(c.Context(), engineReq)

	return c.OK(ExecuteResponse{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	})
}

// handleExecuteStream runs a command and forwards each output line as a
// server-sent event. Event names: "stdout", "stderr", "error", "done".
// The client disconnecting cancels the execution through the request context.
func (g *Gateway) handleExecuteStream(c *okapi.Context) error {
	if g.limiter != nil {
		// Held until the stream drains — a streaming execution occupies its
		// client's slot for as long as the command runs.
		release, err := g.limiter.Acquire(clientKey(c.Request()))
		if err != nil {
			return c.AbortTooManyRequests(err.Error())
		}
		defer release()
	}

	var req ExecuteRequest
	engineReq, err := g.engineRequest(c, &req)
	if err != nil {
		return err
	}

	correlationID := newCorrelationID()
	g.logger.Info("execute stream request",
		slog.String("correlation_id", correlationID),
		slog.Int("timeout_s", req.Timeout),
	)

	for ev := range g.executor.Stream(c.Context(), engineReq) {
		switch ev.Type {
		case engine.EventStdout:
			c.SSEvent("stdout", SSEEvent{Data: ev.Data})
		case engine.EventStderr:
			c.SSEvent("stderr", SSEEvent{Data: ev.Data})
		case engine.EventError:
			c.SSEvent("error", SSEEvent{Data: ev.Data})
		case engine.EventDone:
			c.SSEvent("done", SSEEvent{ExitCode: ev.ExitCode})
		}
	}
	return nil
}
