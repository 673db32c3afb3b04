package scheduler

import (
	"sort"

	"github.com/shaiso/vibeweaver/internal/domain"
)

// DefaultEstimateMs — оценка для пространства без замеров (5 секунд).
const DefaultEstimateMs = 5000.0

// Estimator — онлайн-оценка среднего времени генерации по пространствам.
type Estimator struct {
	defaultMs float64
	spaces    map[string]*spaceStats
}

type spaceStats struct {
	// totalMs — точная сумма замеров (avg * count).
	// Для целых миллисекунд сумма в float64 точна до 2^53.
	totalMs float64
	count   uint64
}

// NewEstimator создаёт оценщик с заданной оценкой по умолчанию.
func NewEstimator(defaultMs float64) *Estimator {
	if defaultMs <= 0 {
		defaultMs = DefaultEstimateMs
	}
	return &Estimator{
		defaultMs: defaultMs,
		spaces:    make(map[string]*spaceStats),
	}
}

// Record учитывает новый замер и возвращает обновлённую статистику.
//
// Первый замер: avg = d, count = 1.
// Далее: avg' = (avg*n + d) / (n+1), где avg*n хранится как точная сумма,
// поэтому avg всегда равен среднему арифметическому всех замеров.
func (e *Estimator) Record(space string, durationMs uint64) domain.GenerationStats {
	st, ok := e.spaces[space]
	if !ok {
		st = &spaceStats{}
		e.spaces[space] = st
	}
	st.totalMs += float64(durationMs)
	st.count++
	return st.snapshot(space)
}

// Estimate возвращает среднее для пространства или оценку по умолчанию.
func (e *Estimator) Estimate(space string) float64 {
	if st, ok := e.spaces[space]; ok && st.count > 0 {
		return st.totalMs / float64(st.count)
	}
	return e.defaultMs
}

// Stats возвращает статистику пространства.
func (e *Estimator) Stats(space string) (domain.GenerationStats, bool) {
	st, ok := e.spaces[space]
	if !ok {
		return domain.GenerationStats{}, false
	}
	return st.snapshot(space), true
}

// Seed загружает сохранённую статистику. Уже известные пространства не перезаписываются:
// замеры текущего процесса свежее.
func (e *Estimator) Seed(stats []domain.GenerationStats) {
	for _, s := range stats {
		if s.SampleCount == 0 || s.Space == "" {
			continue
		}
		if _, ok := e.spaces[s.Space]; ok {
			continue
		}
		e.spaces[s.Space] = &spaceStats{
			totalMs: s.AvgDurationMs * float64(s.SampleCount),
			count:   s.SampleCount,
		}
	}
}

// All возвращает статистику всех пространств, отсортированную по имени.
func (e *Estimator) All() []domain.GenerationStats {
	out := make([]domain.GenerationStats, 0, len(e.spaces))
	for space, st := range e.spaces {
		out = append(out, st.snapshot(space))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Space < out[j].Space })
	return out
}

func (st *spaceStats) snapshot(space string) domain.GenerationStats {
	return domain.GenerationStats{
		Space:         space,
		AvgDurationMs: st.totalMs / float64(st.count),
		SampleCount:   st.count,
	}
}
