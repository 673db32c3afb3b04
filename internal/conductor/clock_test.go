package conductor

import (
	"testing"
	"time"

	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestClock_StoppedUntilObserved(t *testing.T) {
	c := NewClock(0)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.False(t, c.Playing())
	assert.Equal(t, 0.0, c.Position(now.Add(time.Minute)))
}

func TestClock_ExtrapolatesFromBeatTick(t *testing.T) {
	c := NewClock(120)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c.Observe(domain.BeatTick(16, 120), now)
	assert.True(t, c.Playing())
	assert.Equal(t, 16.0, c.Position(now))

	// 120 bpm: доля за 500ms
	assert.InDelta(t, 17.0, c.Position(now.Add(500*time.Millisecond)), 1e-9)
	assert.InDelta(t, 16.0+maxExtrapolationBeats, c.Position(now.Add(time.Minute)), 1e-9, "capped")
}

func TestClock_TempoFromTick(t *testing.T) {
	c := NewClock(120)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c.Observe(domain.BeatTick(0, 60), now)
	assert.InDelta(t, 1.0, c.Position(now.Add(time.Second)), 1e-9)

	c.SetTempo(-1)
	assert.InDelta(t, 1.0, c.Position(now.Add(time.Second)), 1e-9, "non-positive tempo ignored")

	c.SetTempo(240)
	assert.InDelta(t, 4.0, c.Position(now.Add(time.Second)), 1e-9)
}

func TestClock_Transport(t *testing.T) {
	c := NewClock(120)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c.Observe(domain.TransportStateChanged("stopped", 32), now)
	assert.False(t, c.Playing())
	assert.Equal(t, 32.0, c.Position(now.Add(time.Second)))

	c.Observe(domain.TransportStateChanged(TransportPlaying, 32), now)
	assert.InDelta(t, 34.0, c.Position(now.Add(time.Second)), 1e-9)

	c.Observe(domain.MarkerReached("chorus", 64), now)
	assert.Equal(t, 64.0, c.Position(now))
}
