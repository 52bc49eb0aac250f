// Package ws implements the WebSocket execution endpoint. A client connects,
// sends one JSON execution request, and receives each output line as a JSON
// message the moment it is produced, followed by a terminal done message.
// Disconnecting mid-execution terminates the running command.
package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/jkaninda/sanduku/internal/engine"
)

// Config configures the WebSocket endpoint.
type Config struct {
	APIKey         string        // Bearer token. Empty = unauthenticated.
	DefaultTimeout time.Duration // Applied when a request omits a timeout. 0 = unbounded.
}

// Server upgrades connections and streams execution output over them.
type Server struct {
	executor engine.Executor
	cfg      Config
	logger   *slog.Logger
}

// NewServer creates a WebSocket execution server.
func NewServer(executor engine.Executor, cfg Config, logger *slog.Logger) *Server {
	return &Server{
		executor: executor,
		cfg:      cfg,
		logger:   logger,
	}
}

// Handler returns an http.Handler that upgrades connections to WebSocket.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleUpgrade)
}

// Request is the single JSON message a client sends after connecting.
type Request struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"` // Seconds. 0 = server default.
}

// Message is one JSON message sent to the client.
type Message struct {
	Type     string `json:"type"` // "stdout", "stderr", "error", "done"
	Data     string `json:"data,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query parameter or bearer header. Constant-time
	// comparison, same as the HTTP gateway's bearer check.
	if s.cfg.APIKey != "" {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = r.Header.Get("Authorization")
			token = strings.TrimPrefix(token, "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{"sanduku-exec-v1"},
	})
	if err != nil {
		s.logger.Error("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	s.handleConnection(r.Context(), conn)
}

func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close(websocket.StatusNormalClosure, "execution finished")

	// The first (and only) client message is the execution request.
	_, data, err := conn.Read(ctx)
	if err != nil {
		s.logger.Warn("websocket read failed", slog.String("error", err.Error()))
		return
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.writeMessage(ctx, conn, Message{Type: "error", Data: "invalid request"})
		conn.Close(websocket.StatusUnsupportedData, "invalid request")
		return
	}
	if req.Command == "" {
		s.writeMessage(ctx, conn, Message{Type: "error", Data: "command is required"})
		conn.Close(websocket.StatusUnsupportedData, "command is required")
		return
	}

	timeout := s.cfg.DefaultTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}

	// Reads continue in the background so the client closing the socket
	// cancels the execution instead of leaving it running headless.
	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.Read(execCtx); err != nil {
				cancel()
				return
			}
		}
	}()

	for ev := range s.executor.Stream(execCtx, engine.Request{Command: req.Command, Timeout: timeout}) {
		msg := Message{Data: ev.Data}
		switch ev.Type {
		case engine.EventStdout:
			msg.Type = "stdout"
		case engine.EventStderr:
			msg.Type = "stderr"
		case engine.EventError:
			msg.Type = "error"
		case engine.EventDone:
			msg = Message{Type: "done", ExitCode: ev.ExitCode}
		}
		if !s.writeMessage(execCtx, conn, msg) {
			return
		}
	}
}

// writeMessage sends one JSON message, reporting whether the connection is
// still usable.
func (s *Server) writeMessage(ctx context.Context, conn *websocket.Conn, msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		if websocket.CloseStatus(err) == -1 {
			s.logger.Warn("websocket write failed", slog.String("error", err.Error()))
		}
		return false
	}
	return true
}
