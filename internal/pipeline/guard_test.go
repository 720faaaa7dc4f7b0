package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunGuard_SingleCallerRuns(t *testing.T) {
	g := NewRunGuard(nil)

	res, shared, err := g.Do(context.Background(), func(context.Context) (RunResult, error) {
		return RunResult{Status: StatusIdle, Done: 3}, nil
	})

	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, 3, res.Done)
	assert.False(t, g.Running())
	assert.Equal(t, int64(1), g.Runs())

	last, ok := g.Last()
	require.True(t, ok)
	assert.Equal(t, 3, last.Done)
}

func TestRunGuard_ConcurrentCallersShareOneRun(t *testing.T) {
	// Given: a run that blocks until released
	g := NewRunGuard(nil)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(context.Context) (RunResult, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return RunResult{Done: 7}, nil
	}

	// When: ten callers arrive while it is active
	first := make(chan RunResult, 1)
	go func() {
		res, _, _ := g.Do(context.Background(), fn)
		first <- res
	}()
	<-started
	assert.True(t, g.Running())
	assert.False(t, g.StartedAt().IsZero())

	var wg sync.WaitGroup
	var sharedCount atomic.Int32
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, shared, err := g.Do(context.Background(), fn)
			assert.NoError(t, err)
			assert.Equal(t, 7, res.Done)
			if shared {
				sharedCount.Add(1)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	// Then: the work ran once and everyone got its result
	assert.Equal(t, 7, (<-first).Done)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(10), sharedCount.Load())
	assert.Equal(t, int64(1), g.Runs())
}

func TestRunGuard_CancelledCallerDoesNotStopRun(t *testing.T) {
	g := NewRunGuard(nil)
	release := make(chan struct{})
	finished := make(chan struct{})
	var runCtxErr error

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, _, err := g.Do(ctx, func(runCtx context.Context) (RunResult, error) {
			<-release
			runCtxErr = runCtx.Err()
			close(finished)
			return RunResult{}, nil
		})
		errCh <- err
	}()

	// When: the caller gives up
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	// Then: the run keeps going with a live context
	close(release)
	<-finished
	assert.NoError(t, runCtxErr)
}

func TestRunGuard_ErrorIsReturnedAndGuardReopens(t *testing.T) {
	g := NewRunGuard(nil)
	boom := errors.New("boom")

	_, _, err := g.Do(context.Background(), func(context.Context) (RunResult, error) {
		return RunResult{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, g.Running())

	res, _, err := g.Do(context.Background(), func(context.Context) (RunResult, error) {
		return RunResult{Done: 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Done)
	assert.Equal(t, int64(2), g.Runs())
}

func TestRunGuard_RerunStartsFreshRunAfterActiveOne(t *testing.T) {
	g := NewRunGuard(nil)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(context.Context) (RunResult, error) {
		n := calls.Add(1)
		if n == 1 {
			close(started)
			<-release
		}
		return RunResult{Done: int(n)}, nil
	}

	go func() { _, _, _ = g.Do(context.Background(), fn) }()
	<-started

	done := make(chan RunResult, 1)
	go func() {
		res, err := g.Rerun(context.Background(), fn)
		assert.NoError(t, err)
		done <- res
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	res := <-done
	assert.Equal(t, 2, res.Done)
	assert.Equal(t, int32(2), calls.Load())
}
