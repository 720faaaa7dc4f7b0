// Package httpapi serves the daemon message protocol and a few read-only
// routes over HTTP, together with the Prometheus metrics endpoint.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Aman-CERP/pagemind/internal/daemon"
	"github.com/Aman-CERP/pagemind/internal/service"
	"github.com/Aman-CERP/pagemind/internal/telemetry"
)

const (
	readTimeout     = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	maxBodyBytes    = 1 << 20
)

// Dispatcher serves one protocol message. *daemon.Server implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req daemon.Request) daemon.Response
}

// Server is the HTTP surface of the daemon.
type Server struct {
	addr       string
	svc        *service.Service
	dispatcher Dispatcher
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	router     http.Handler
}

// New creates a server listening on addr. metrics may be nil, in which case
// /metrics is not mounted.
func New(addr string, svc *service.Service, dispatcher Dispatcher, metrics *telemetry.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:       addr,
		svc:        svc,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger.With(slog.String("component", "http")),
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	if s.metrics != nil {
		r.Use(s.observe)
		r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	}
	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/messages", s.handleMessage)
		r.Get("/status", s.handleStatus)
		r.Get("/stats", s.handleStats)
		r.Post("/ask", s.handleAsk)
		r.Get("/search", s.handleSearch)
	})

	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled. It returns ctx.Err() after a
// graceful shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("http_listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http_shutdown_failed", slog.String("error", err.Error()))
	}
	return ctx.Err()
}
