package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
)

// Server listens on a Unix socket and serves one request per connection.
type Server struct {
	socketPath  string
	readTimeout time.Duration
	handlers    map[Method]HandlerFunc
	logger      *slog.Logger

	listener net.Listener
	started  time.Time

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for the given handlers.
func NewServer(cfg Config, handlers map[Method]HandlerFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Server{
		socketPath:  cfg.SocketPath,
		readTimeout: timeout,
		handlers:    handlers,
		logger:      logger,
	}
}

// ListenAndServe starts the server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// Clean up any stale socket
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		s.logger.Warn("socket_chmod_failed", slog.String("error", err.Error()))
	}

	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	s.logger.Info("daemon_listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			s.logger.Error("accept_failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	// Wait for active connections to finish
	s.wg.Wait()

	return ctx.Err()
}

// handleConnection reads one request, dispatches it and writes the response.
// Only reading and writing are bounded by the timeout; a handler may run as
// long as its work takes.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		s.logger.Warn("set_deadline_failed", slog.String("error", err.Error()))
	}

	encoder := json.NewEncoder(conn)
	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	resp := s.Dispatch(ctx, req)
	_ = conn.SetWriteDeadline(time.Now().Add(s.readTimeout))
	if err := encoder.Encode(resp); err != nil {
		s.logger.Warn("response_write_failed",
			slog.String("method", string(req.Method)),
			slog.String("error", err.Error()))
	}
}

// Dispatch runs the handler for req. A panicking handler yields an internal
// error response.
func (s *Server) Dispatch(ctx context.Context, req Request) (resp Response) {
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "unsupported jsonrpc version")
	}

	h, ok := s.handlers[req.Method]
	if !ok {
		err := apperrors.New(apperrors.ErrCodeUnknownMethod, fmt.Sprintf("method not found: %s", req.Method), nil)
		return Response{JSONRPC: "2.0", Error: ErrorFor(err), ID: req.ID}
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler_panic",
				slog.String("method", string(req.Method)),
				slog.Any("panic", r))
			resp = NewErrorResponse(req.ID, ErrCodeInternalError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	reply, err := h(ctx, req.Params)
	if err != nil {
		s.logger.Warn("request_failed",
			slog.String("method", string(req.Method)),
			slog.String("code", apperrors.GetCode(err)),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return Response{JSONRPC: "2.0", Error: ErrorFor(err), ID: req.ID}
	}

	s.logger.Debug("request_served",
		slog.String("method", string(req.Method)),
		slog.Duration("duration", time.Since(start)))
	return NewSuccessResponse(req.ID, reply)
}

// Uptime returns how long the server has been listening.
func (s *Server) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		return 0
	}
	return time.Since(s.started)
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
