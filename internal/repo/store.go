package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/vibeweaver/internal/domain"
)

// Store объединяет RuleRepo и StatsRepo в хранилище планировщика.
type Store struct {
	Rules *RuleRepo
	Stats *StatsRepo
}

// NewStore создаёт Store поверх пула.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Rules: NewRuleRepo(pool),
		Stats: NewStatsRepo(pool),
	}
}

func (s *Store) ListRules(ctx context.Context, sessionID uuid.UUID) ([]domain.Rule, error) {
	return s.Rules.ListBySession(ctx, sessionID)
}

func (s *Store) ListAllRules(ctx context.Context) ([]domain.Rule, error) {
	return s.Rules.List(ctx, RuleFilter{})
}

func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (*domain.Rule, error) {
	return s.Rules.GetByID(ctx, id)
}

func (s *Store) InsertRule(ctx context.Context, rule *domain.Rule) error {
	return s.Rules.Insert(ctx, rule)
}

func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	return s.Rules.Delete(ctx, id)
}

func (s *Store) UpdateRuleFired(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.Rules.UpdateFired(ctx, id, at)
}

func (s *Store) SetRuleEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return s.Rules.SetEnabled(ctx, id, enabled)
}

func (s *Store) UpdateGenerationStats(ctx context.Context, stats domain.GenerationStats) error {
	return s.Stats.Upsert(ctx, stats)
}

func (s *Store) ListGenerationStats(ctx context.Context) ([]domain.GenerationStats, error) {
	return s.Stats.List(ctx)
}

// Close ничего не делает: пул принадлежит вызывающему.
func (s *Store) Close() error { return nil }
