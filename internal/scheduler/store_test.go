package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/shaiso/vibeweaver/internal/repo"
)

var errStoreDown = errors.New("store down")

// memStore — хранилище в памяти для тестов с инъекцией ошибок.
type memStore struct {
	mu    sync.Mutex
	rules map[uuid.UUID]domain.Rule
	stats map[string]domain.GenerationStats

	deleted []uuid.UUID
	fired   map[uuid.UUID]int

	failInsert bool
	failDelete bool
	failFired  bool
	failStats  bool
}

func newMemStore() *memStore {
	return &memStore{
		rules: make(map[uuid.UUID]domain.Rule),
		stats: make(map[string]domain.GenerationStats),
		fired: make(map[uuid.UUID]int),
	}
}

func (m *memStore) ListRules(_ context.Context, sessionID uuid.UUID) ([]domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Rule
	for _, r := range m.rules {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) InsertRule(_ context.Context, rule *domain.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failInsert {
		return errStoreDown
	}
	if _, ok := m.rules[rule.ID]; ok {
		return repo.ErrAlreadyExists
	}
	m.rules[rule.ID] = *rule
	return nil
}

func (m *memStore) DeleteRule(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleted = append(m.deleted, id)
	if m.failDelete {
		return errStoreDown
	}
	if _, ok := m.rules[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *memStore) UpdateRuleFired(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failFired {
		return errStoreDown
	}
	m.fired[id]++
	if r, ok := m.rules[id]; ok {
		r.MarkFired(at)
		m.rules[id] = r
	}
	return nil
}

func (m *memStore) UpdateGenerationStats(_ context.Context, stats domain.GenerationStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failStats {
		return errStoreDown
	}
	m.stats[stats.Space] = stats
	return nil
}

func (m *memStore) ListGenerationStats(_ context.Context) ([]domain.GenerationStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.GenerationStats, 0, len(m.stats))
	for _, s := range m.stats {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) hasRule(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rules[id]
	return ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(store *memStore) *Scheduler {
	return New(Config{
		SessionID: uuid.New(),
		Store:     store,
		Logger:    testLogger(),
		Now:       func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) },
	})
}
