package service

import (
	"context"
	"time"

	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/store"
)

// StatusReport is the aggregate state shown by every surface.
type StatusReport struct {
	Status     pipeline.RuntimeStatus    `json:"status"`
	Running    bool                      `json:"running"`
	RunStarted *time.Time                `json:"run_started_at,omitempty"`
	Configured bool                      `json:"configured"`
	Missing    []string                  `json:"missing_settings,omitempty"`
	Progress   pipeline.ProgressSnapshot `json:"progress"`
	Stats      store.Stats               `json:"stats"`
	Runs       int64                     `json:"runs"`
	LastRun    *pipeline.RunResult       `json:"last_run,omitempty"`
}

// Status collects the runtime status, settings completeness and counts.
// Unreadable settings report as not configured.
func (s *Service) Status(ctx context.Context) (StatusReport, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return StatusReport{}, err
	}

	guard := s.orch.Guard()
	rep := StatusReport{
		Status:   s.orch.Status(),
		Running:  guard.Running(),
		Progress: s.orch.Progress(),
		Stats:    stats,
		Runs:     guard.Runs(),
	}
	if rep.Running {
		started := guard.StartedAt()
		rep.RunStarted = &started
	}
	if last, ok := guard.Last(); ok {
		rep.LastRun = &last
	}

	if cur, err := s.settings.Settings(ctx); err == nil {
		rep.Missing = cur.Missing()
		rep.Configured = len(rep.Missing) == 0
	}
	return rep, nil
}
