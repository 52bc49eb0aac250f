// Package mcpserver exposes command execution as an MCP tool over stdio,
// so agent frameworks can drive the sandbox without the HTTP gateway.
package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jkaninda/sanduku/internal/engine"
)

const instructions = `Sanduku runs shell commands in a sandboxed working directory.

Use the execute tool to run a command. The command line is interpreted by the
shell, so pipes, redirection, and environment expansion all work. Output is
returned once the command finishes; long-running commands should set a
timeout to avoid blocking the session.`

// handler holds shared dependencies for all tool handlers.
type handler struct {
	executor engine.Executor
	version  string
}

// NewServer creates an MCP server with the sandbox tools registered.
func NewServer(executor engine.Executor, version string) *mcp.Server {
	h := &handler{
		executor: executor,
		version:  version,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "sanduku", Version: version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "execute",
		Description: `Run a shell command in the sandbox and return its output.

The command is shell-interpreted. Standard output and standard error are
returned separately together with the exit code. A timed-out command reports
exit code 124 with the output produced before the deadline.`,
	}, h.executeHandler)

	return s
}

// Run serves MCP requests over stdio until ctx is cancelled.
func Run(ctx context.Context, executor engine.Executor, version string) error {
	return NewServer(executor, version).Run(ctx, &mcp.StdioTransport{})
}

type executeParams struct {
	Command        string `json:"command" jsonschema:"Shell command line to run."`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"Wall-clock timeout in seconds. 0 = unbounded."`
}

func (h *handler) executeHandler(ctx context.Context, req *mcp.CallToolRequest, params executeParams) (*mcp.CallToolResult, any, error) {
	if params.Command == "" {
		return errorResult("command is required")
	}
	if params.TimeoutSeconds < 0 {
		return errorResult("timeout_seconds must not be negative")
	}

	res := h.executor.Execute(ctx, engine.Request{
		Command: params.Command,
		Timeout: time.Duration(params.TimeoutSeconds) * time.Second,
	})

	if res.State == engine.StateLaunchFailed {
		return errorResult(res.Stderr)
	}
	return textResult(formatResult(res))
}

// formatResult renders an execution outcome as tool output text.
func formatResult(res engine.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Exit code: %d\n", res.ExitCode)
	if res.State != engine.StateCompleted {
		fmt.Fprintf(&b, "State: %s\n", res.State)
	}
	if res.Stdout != "" {
		fmt.Fprintf(&b, "\nStdout:\n%s", res.Stdout)
		if !strings.HasSuffix(res.Stdout, "\n") {
			b.WriteByte('\n')
		}
	}
	if res.Stderr != "" {
		fmt.Fprintf(&b, "\nStderr:\n%s", res.Stderr)
		if !strings.HasSuffix(res.Stderr, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// textResult is a helper to build a successful tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
