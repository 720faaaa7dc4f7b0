package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const runKey = "analysis"

// RunFunc performs one analysis run.
type RunFunc func(ctx context.Context) (RunResult, error)

// RunGuard admits at most one analysis run per process. Callers arriving
// while a run is active attach to it and receive its result.
type RunGuard struct {
	group singleflight.Group
	now   func() time.Time

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	runs      int64
	last      *RunResult
}

// NewRunGuard creates a guard. A nil clock uses time.Now.
func NewRunGuard(now func() time.Time) *RunGuard {
	if now == nil {
		now = time.Now
	}
	return &RunGuard{now: now}
}

// Do runs fn unless a run is already active, in which case it waits for
// that run. shared reports whether the result came from another caller's
// run. The run itself is detached from ctx: cancelling ctx only stops this
// caller from waiting.
func (g *RunGuard) Do(ctx context.Context, fn RunFunc) (res RunResult, shared bool, err error) {
	runCtx := context.WithoutCancel(ctx)
	ch := g.group.DoChan(runKey, func() (any, error) {
		var r RunResult
		g.begin()
		defer func() { g.end(r) }()

		r, runErr := fn(runCtx)
		return r, runErr
	})

	select {
	case out := <-ch:
		r, _ := out.Val.(RunResult)
		return r, out.Shared, out.Err
	case <-ctx.Done():
		return RunResult{}, false, ctx.Err()
	}
}

// Rerun waits for any active run to finish, then starts a fresh one. Hosts
// call it after adding records so they are not left for the next trigger.
func (g *RunGuard) Rerun(ctx context.Context, fn RunFunc) (RunResult, error) {
	if g.Running() {
		if _, _, err := g.Do(ctx, fn); ctx.Err() != nil {
			return RunResult{}, err
		}
	}
	res, _, err := g.Do(ctx, fn)
	return res, err
}

// Running reports whether a run is active.
func (g *RunGuard) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// StartedAt returns when the active run began, or the zero time.
func (g *RunGuard) StartedAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return time.Time{}
	}
	return g.startedAt
}

// Runs returns how many runs have completed.
func (g *RunGuard) Runs() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.runs
}

// Last returns the result of the most recent completed run.
func (g *RunGuard) Last() (RunResult, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		return RunResult{}, false
	}
	return *g.last, true
}

func (g *RunGuard) begin() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = true
	g.startedAt = g.now()
}

func (g *RunGuard) end(r RunResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
	g.runs++
	g.last = &r
}
