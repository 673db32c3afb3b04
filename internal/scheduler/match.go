package scheduler

import (
	"math"
	"slices"

	"github.com/shaiso/vibeweaver/internal/domain"
)

// DefaultBeatTolerance — допуск дробной части доли для beat-триггеров.
//
// Значение подобрано под тик шины; при дрейфе часов рядом
// с границей такта его может понадобиться подстроить (tuning.beat_tolerance).
const DefaultBeatTolerance = 0.1

// MatchBeat возвращает true, если floor(beat) кратен divisor
// и дробная часть beat меньше tolerance. divisor == 0 не совпадает никогда.
func MatchBeat(beat float64, divisor uint32, tolerance float64) bool {
	if divisor == 0 {
		return false
	}
	whole := math.Floor(beat)
	if math.Mod(whole, float64(divisor)) != 0 {
		return false
	}
	return beat-whole < tolerance
}

// matcherFor возвращает категорию и предикат для broadcast.
// ok == false — broadcast не относится ни к одной категории правил.
func (s *Scheduler) matcherFor(b domain.Broadcast) (domain.TriggerType, func(domain.Trigger) bool, bool) {
	switch b.Kind {
	case domain.BroadcastBeatTick:
		tolerance := s.beatTolerance
		return domain.TriggerBeat, func(t domain.Trigger) bool {
			return MatchBeat(b.Beat, t.Divisor, tolerance)
		}, true

	case domain.BroadcastMarkerReached:
		return domain.TriggerMarker, func(t domain.Trigger) bool {
			return t.Name == b.Name
		}, true

	case domain.BroadcastArtifactCreated:
		return domain.TriggerArtifact, func(t domain.Trigger) bool {
			return t.Tag == nil || slices.Contains(b.Tags, *t.Tag)
		}, true

	case domain.BroadcastJobStateChanged:
		if !domain.IsTerminalJobState(b.State) {
			return "", nil, false
		}
		return domain.TriggerJobComplete, func(t domain.Trigger) bool {
			return t.JobID == b.JobID
		}, true

	case domain.BroadcastTransportStateChanged:
		return domain.TriggerTransport, func(t domain.Trigger) bool {
			return t.State == b.State
		}, true

	case domain.BroadcastUnknown:
		return "", nil, false

	default:
		return "", nil, false
	}
}
