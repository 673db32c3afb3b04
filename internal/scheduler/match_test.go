package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchBeat(t *testing.T) {
	tests := []struct {
		name    string
		beat    float64
		divisor uint32
		want    bool
	}{
		{"downbeat zero", 0.0, 4, true},
		{"off divisor", 1.0, 4, false},
		{"next bar", 4.0, 4, true},
		{"within tolerance", 8.05, 4, true},
		{"past tolerance", 8.2, 4, false},
		{"late in beat", 4.5, 4, false},
		{"divisor one every beat", 13.0, 1, true},
		{"zero divisor never", 0.0, 0, false},
		{"large divisor", 32.0, 16, true},
		{"large divisor off", 24.0, 16, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchBeat(tt.beat, tt.divisor, DefaultBeatTolerance))
		})
	}
}

func TestMatchBeat_AllDivisorsMatchOnMultiples(t *testing.T) {
	for divisor := uint32(1); divisor <= 16; divisor++ {
		for k := 0; k < 8; k++ {
			beat := float64(uint32(k) * divisor)
			assert.True(t, MatchBeat(beat, divisor, DefaultBeatTolerance), "beat %v divisor %d", beat, divisor)
			assert.True(t, MatchBeat(beat+0.09, divisor, DefaultBeatTolerance))
			assert.False(t, MatchBeat(beat+0.5, divisor, DefaultBeatTolerance))
		}
	}
}

func TestMatchBeat_CustomTolerance(t *testing.T) {
	assert.False(t, MatchBeat(4.15, 4, DefaultBeatTolerance))
	assert.True(t, MatchBeat(4.15, 4, 0.2))
}
