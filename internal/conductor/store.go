package conductor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/shaiso/vibeweaver/internal/repo"
	"github.com/shaiso/vibeweaver/internal/scheduler"
	"github.com/shaiso/vibeweaver/internal/telemetry"
)

// instrumentedStore считает ошибки хранилища в vibeweaver_store_errors_total.
// ErrNotFound ошибкой не считается: это нормальный исход удаления one-shot правила.
type instrumentedStore struct {
	next scheduler.Store
}

func instrument(store scheduler.Store) scheduler.Store {
	if _, ok := store.(instrumentedStore); ok {
		return store
	}
	return instrumentedStore{next: store}
}

func observe(op string, err error) error {
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		telemetry.StoreErrors.WithLabelValues(op).Inc()
	}
	return err
}

func (s instrumentedStore) ListRules(ctx context.Context, sessionID uuid.UUID) ([]domain.Rule, error) {
	rules, err := s.next.ListRules(ctx, sessionID)
	return rules, observe("list_rules", err)
}

func (s instrumentedStore) InsertRule(ctx context.Context, rule *domain.Rule) error {
	return observe("insert_rule", s.next.InsertRule(ctx, rule))
}

func (s instrumentedStore) DeleteRule(ctx context.Context, id uuid.UUID) error {
	return observe("delete_rule", s.next.DeleteRule(ctx, id))
}

func (s instrumentedStore) UpdateRuleFired(ctx context.Context, id uuid.UUID, at time.Time) error {
	return observe("update_rule_fired", s.next.UpdateRuleFired(ctx, id, at))
}

func (s instrumentedStore) UpdateGenerationStats(ctx context.Context, stats domain.GenerationStats) error {
	return observe("update_generation_stats", s.next.UpdateGenerationStats(ctx, stats))
}

func (s instrumentedStore) ListGenerationStats(ctx context.Context) ([]domain.GenerationStats, error) {
	stats, err := s.next.ListGenerationStats(ctx)
	return stats, observe("list_generation_stats", err)
}
