package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/pagemind/internal/service"
)

// Runner is a component that runs until its context is cancelled, such as
// the HTTP API or the source watcher.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Daemon owns the PID file, the socket server and any extra runners.
type Daemon struct {
	cfg     Config
	svc     *service.Service
	server  *Server
	pidFile *PIDFile
	runners []Runner
	logger  *slog.Logger
}

// New creates a daemon serving svc.
func New(cfg Config, svc *service.Service, logger *slog.Logger, runners ...Runner) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		cfg:     cfg,
		svc:     svc,
		server:  NewServer(cfg, Handlers(svc), logger),
		pidFile: NewPIDFile(cfg.PIDPath),
		runners: runners,
		logger:  logger,
	}, nil
}

// Server returns the socket server.
func (d *Daemon) Server() *Server { return d.server }

// Start runs until ctx is cancelled or a component fails. Background
// analysis jobs get ShutdownGracePeriod to finish.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}
	if err := d.pidFile.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := d.pidFile.Remove(); err != nil {
			d.logger.Warn("pid_remove_failed", slog.String("error", err.Error()))
		}
	}()

	d.logger.Info("daemon_started",
		slog.String("socket", d.cfg.SocketPath),
		slog.Int("runners", len(d.runners)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.server.ListenAndServe(gctx)
	})
	for _, r := range d.runners {
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	err := g.Wait()
	d.drain()

	d.logger.Info("daemon_stopped", slog.Duration("uptime", d.server.Uptime()))
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (d *Daemon) drain() {
	done := make(chan struct{})
	go func() {
		d.svc.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.cfg.ShutdownGracePeriod):
		d.logger.Warn("shutdown_grace_expired", slog.Duration("grace", d.cfg.ShutdownGracePeriod))
	}
}
