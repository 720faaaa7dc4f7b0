package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/pagemind/internal/config"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status by lowercase name.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult is one check's outcome. Required checks that fail stop
// doctor with a non-zero exit.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports a failed required check.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Summary values for Report.Status.
const (
	SummaryReady        = "ready"
	SummaryWithWarnings = "ready_with_warnings"
	SummaryFailed       = "failed"
)

// Report is the outcome of a full run.
type Report struct {
	Status string        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

// NewReport summarizes results.
func NewReport(results []CheckResult) Report {
	rep := Report{Status: SummaryReady, Checks: results}
	for _, r := range results {
		switch {
		case r.IsCritical():
			rep.Status = SummaryFailed
		case r.Status != StatusPass && rep.Status == SummaryReady:
			rep.Status = SummaryWithWarnings
		}
	}
	return rep
}

// Failed reports whether any required check failed.
func (r Report) Failed() bool { return r.Status == SummaryFailed }

// Problems splits non-passing checks into errors and warnings.
func (r Report) Problems() (errs, warnings []CheckResult) {
	for _, c := range r.Checks {
		switch {
		case c.IsCritical():
			errs = append(errs, c)
		case c.Status != StatusPass:
			warnings = append(warnings, c)
		}
	}
	return errs, warnings
}

// Target is what the checks inspect.
type Target struct {
	DataDir  string
	Settings config.Settings
	Sources  []config.WatchSource
	Cache    config.CacheConfig
}

// TargetFrom builds a target from the loaded configuration and the current
// settings.
func TargetFrom(cfg *config.Config, s config.Settings) Target {
	return Target{DataDir: cfg.DataDir, Settings: s, Sources: cfg.Server.Watch, Cache: cfg.Cache}
}

// Checker runs the checks.
type Checker struct {
	verbose      bool
	output       io.Writer
	redisTimeout time.Duration
}

type Option func(*Checker)

// WithVerbose prints each check's details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.output = w }
}

// WithRedisTimeout bounds the cache ping. Zero keeps the default.
func WithRedisTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.redisTimeout = d
		}
	}
}

func New(opts ...Option) *Checker {
	c := &Checker{output: os.Stdout, redisTimeout: 2 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes every check in order. The data directory is created first
// so the disk and write checks have something to inspect.
func (c *Checker) Run(ctx context.Context, t Target) Report {
	checks := []func() CheckResult{
		func() CheckResult { return c.CheckDataDir(t.DataDir) },
		func() CheckResult { return c.CheckDiskSpace(t.DataDir) },
		func() CheckResult { return c.CheckWritePermissions(t.DataDir) },
		c.CheckFileDescriptors,
		func() CheckResult { return c.CheckSettings(t.Settings) },
		func() CheckResult { return c.CheckSources(t.Sources) },
		func() CheckResult { return c.CheckCache(ctx, t.Cache) },
	}
	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		results = append(results, check())
	}
	return NewReport(results)
}

// Print writes rep as a checklist followed by a summary.
func (c *Checker) Print(rep Report) {
	w := c.output
	_, _ = fmt.Fprintf(w, "pagemind doctor\n\n")

	width := 0
	for _, r := range rep.Checks {
		width = max(width, len(r.Name))
	}
	for _, r := range rep.Checks {
		_, _ = fmt.Fprintf(w, "  [%s] %-*s  %s\n", r.Status, width, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(w, "         %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintf(w, "\nStatus: %s\n", strings.ToUpper(rep.Status))
	errs, warnings := rep.Problems()
	printProblems(w, "error(s)", errs)
	printProblems(w, "warning(s)", warnings)
}

func printProblems(w io.Writer, label string, results []CheckResult) {
	if len(results) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "\n%d %s:\n", len(results), label)
	for _, r := range results {
		line := r.Name + ": " + r.Message
		if r.Details != "" {
			line += " (" + r.Details + ")"
		}
		_, _ = fmt.Fprintf(w, "  - %s\n", line)
	}
}

// CheckDataDir creates the data directory when it is missing.
func (c *Checker) CheckDataDir(path string) CheckResult {
	result := CheckResult{Name: "data_dir", Required: true}
	if err := os.MkdirAll(path, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", path, err)
		return result
	}
	result.Message = path
	return result
}

// CheckWritePermissions creates and removes a probe file in path.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	result := CheckResult{Name: "write_permissions", Required: true}

	probe, err := os.CreateTemp(path, ".pagemind-probe-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())

	result.Message = "writable " + filepath.Clean(path)
	return result
}
