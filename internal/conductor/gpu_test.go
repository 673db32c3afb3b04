package conductor

import (
	"testing"
	"time"

	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestGPUTracker_BusyUntilTerminal(t *testing.T) {
	g := NewGPUTracker(0, nil)
	assert.False(t, g.Busy())

	g.Observe(domain.JobStateChanged("j1", "running", ""))
	g.Observe(domain.JobStateChanged("j2", "queued", ""))
	assert.Equal(t, 2, g.InFlight())

	g.Observe(domain.JobStateChanged("j1", domain.JobStateComplete, "a1"))
	assert.True(t, g.Busy())

	g.Observe(domain.JobStateChanged("j2", domain.JobStateFailed, ""))
	assert.False(t, g.Busy())
}

func TestGPUTracker_IgnoresUnrelated(t *testing.T) {
	g := NewGPUTracker(0, nil)

	g.Observe(domain.BeatTick(4, 120))
	g.Observe(domain.JobStateChanged("", "running", ""))
	g.Observe(domain.JobStateChanged("j1", domain.DefaultJobState, ""))

	assert.False(t, g.Busy())
}

func TestGPUTracker_PrunesStaleJobs(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewGPUTracker(time.Minute, func() time.Time { return now })

	g.Observe(domain.JobStateChanged("lost", "running", ""))
	assert.True(t, g.Busy())

	now = now.Add(2 * time.Minute)
	assert.False(t, g.Busy())
}
