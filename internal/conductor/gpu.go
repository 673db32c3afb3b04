package conductor

import (
	"sync"
	"time"

	"github.com/shaiso/vibeweaver/internal/domain"
)

// defaultJobStaleAfter — job без событий дольше этого считается потерянным.
const defaultJobStaleAfter = 10 * time.Minute

// GPUTracker считает GPU занятым, пока есть незавершённые job.
//
// Job появляется с первым нетерминальным состоянием и исчезает
// с complete / failed. Потерянные job вычищаются по staleAfter,
// иначе один пропущенный complete блокировал бы дедлайны навсегда.
type GPUTracker struct {
	mu         sync.Mutex
	jobs       map[string]time.Time
	staleAfter time.Duration
	now        func() time.Time
}

// NewGPUTracker создаёт трекер.
func NewGPUTracker(staleAfter time.Duration, now func() time.Time) *GPUTracker {
	if staleAfter <= 0 {
		staleAfter = defaultJobStaleAfter
	}
	if now == nil {
		now = time.Now
	}
	return &GPUTracker{
		jobs:       make(map[string]time.Time),
		staleAfter: staleAfter,
		now:        now,
	}
}

// Observe учитывает событие job. Остальные события игнорируются.
func (g *GPUTracker) Observe(b domain.Broadcast) {
	if b.Kind != domain.BroadcastJobStateChanged || b.JobID == "" {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case domain.IsTerminalJobState(b.State):
		delete(g.jobs, b.JobID)
	case b.State == domain.DefaultJobState:
		// состояние неизвестно — не меняем картину
	default:
		g.jobs[b.JobID] = g.now()
	}
}

// Busy сообщает, есть ли job в работе.
func (g *GPUTracker) Busy() bool {
	return g.InFlight() > 0
}

// InFlight возвращает число job в работе.
func (g *GPUTracker) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-g.staleAfter)
	for id, seen := range g.jobs {
		if seen.Before(cutoff) {
			delete(g.jobs, id)
		}
	}
	return len(g.jobs)
}
