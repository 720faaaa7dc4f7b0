// Package daemon serves the pagemind message protocol on a Unix socket so
// the CLI and local tools talk to one long-running process that owns the
// analysis loop, the file watcher and the HTTP API.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/pagemind/internal/config"
)

const (
	// DefaultTimeout bounds socket reads and writes.
	DefaultTimeout = 30 * time.Second
	// DefaultShutdownGrace is how long in-flight analysis may run after
	// a stop request.
	DefaultShutdownGrace = 10 * time.Second
)

// Config locates the daemon's runtime files.
type Config struct {
	// SocketPath is where the daemon listens, under the data dir by default.
	SocketPath string
	// PIDPath records the serving process.
	PIDPath string
	// Timeout bounds reading a request and writing its response. Clients
	// also use it for dialing.
	Timeout time.Duration
	// ShutdownGracePeriod caps how long Stop waits for handlers.
	ShutdownGracePeriod time.Duration
}

// ConfigFrom derives the daemon configuration from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		SocketPath:          cfg.SocketPath(),
		PIDPath:             cfg.PIDPath(),
		Timeout:             DefaultTimeout,
		ShutdownGracePeriod: DefaultShutdownGrace,
	}
}

// Validate reports every missing or non-positive field at once.
func (c Config) Validate() error {
	var errs []error
	if c.SocketPath == "" {
		errs = append(errs, errors.New("daemon: socket path is empty"))
	}
	if c.PIDPath == "" {
		errs = append(errs, errors.New("daemon: pid path is empty"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("daemon: timeout %s is not positive", c.Timeout))
	}
	if c.ShutdownGracePeriod <= 0 {
		errs = append(errs, fmt.Errorf("daemon: shutdown grace %s is not positive", c.ShutdownGracePeriod))
	}
	return errors.Join(errs...)
}

// EnsureDir creates the parent directories of the socket and PID file.
func (c Config) EnsureDir() error {
	for _, p := range []string{c.SocketPath, c.PIDPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("daemon: create %s: %w", filepath.Dir(p), err)
		}
	}
	return nil
}
