package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/pagemind/internal/store"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time { return c.t }

func TestProgress_Lifecycle(t *testing.T) {
	clock := &stepClock{t: time.Unix(1_700_000_000, 0)}
	p := NewProgress(clock.now)
	assert.Equal(t, StatusIdle, p.Status())

	// When: a run of four records starts
	p.Start(4, 2)
	clock.t = clock.t.Add(3 * time.Second)
	p.Record(Outcome{Status: store.StatusDone})
	p.Record(Outcome{Status: store.StatusRestricted, Error: "HTTP 403 from x"})

	// Then: the snapshot reflects partial progress
	snap := p.Snapshot()
	assert.Equal(t, string(StatusAnalyzing), snap.Status)
	assert.Equal(t, 2, snap.Processed)
	assert.Equal(t, 1, snap.Done)
	assert.Equal(t, 1, snap.Restricted)
	assert.Equal(t, 50.0, snap.ProgressPct)
	assert.Equal(t, 3, snap.ElapsedSeconds)
	assert.Equal(t, "HTTP 403 from x", snap.LastError)

	// And: finishing freezes elapsed time
	p.Record(Outcome{Status: store.StatusFailed, Error: "boom"})
	p.Record(Outcome{Status: store.StatusDone})
	p.Finish()
	clock.t = clock.t.Add(time.Minute)
	snap = p.Snapshot()
	assert.Equal(t, string(StatusAnalysisComplete), snap.Status)
	assert.Equal(t, 100.0, snap.ProgressPct)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 3, snap.ElapsedSeconds)
	assert.Equal(t, "boom", snap.LastError)
}

func TestProgress_StartResetsCounters(t *testing.T) {
	p := NewProgress(nil)
	p.Start(1, 1)
	p.Record(Outcome{Status: store.StatusFailed, Error: "x"})
	p.Finish()

	p.Start(5, 3)
	snap := p.Snapshot()
	assert.Zero(t, snap.Processed)
	assert.Zero(t, snap.Failed)
	assert.Empty(t, snap.LastError)
	assert.Equal(t, 3, snap.Workers)
}

func TestProgress_EmptySnapshot(t *testing.T) {
	snap := NewProgress(nil).Snapshot()
	assert.Equal(t, "idle", snap.Status)
	assert.Zero(t, snap.ProgressPct)
	assert.Zero(t, snap.ElapsedSeconds)
}
