package cli

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/shaiso/vibeweaver/internal/repo"
	"github.com/shaiso/vibeweaver/internal/repo/sqlite"
	"github.com/shaiso/vibeweaver/internal/scheduler"
)

// Store — хранилище, с которым работают команды CLI.
type Store interface {
	scheduler.Store
	ListAllRules(ctx context.Context) ([]domain.Rule, error)
	GetRule(ctx context.Context, id uuid.UUID) (*domain.Rule, error)
	SetRuleEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	Close() error
}

var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*pgStore)(nil)
)

// pgStore владеет пулом, который открыл CLI.
type pgStore struct {
	*repo.Store
	pool *pgxpool.Pool
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}

// OpenStore открывает SQLite по sqlitePath или, если он пуст, PostgreSQL по dsn.
func OpenStore(ctx context.Context, sqlitePath, dsn string) (Store, error) {
	if sqlitePath != "" {
		return sqlite.Open(sqlitePath)
	}

	pool, err := repo.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &pgStore{Store: repo.NewStore(pool), pool: pool}, nil
}

// readOnlyStore отдаёт правила и статистику, но не сохраняет изменений.
// Используется в simulate, чтобы прогон не трогал счётчики и one-shot правила.
type readOnlyStore struct {
	next scheduler.Store
}

func (s readOnlyStore) ListRules(ctx context.Context, sessionID uuid.UUID) ([]domain.Rule, error) {
	return s.next.ListRules(ctx, sessionID)
}

func (s readOnlyStore) ListGenerationStats(ctx context.Context) ([]domain.GenerationStats, error) {
	return s.next.ListGenerationStats(ctx)
}

func (readOnlyStore) InsertRule(context.Context, *domain.Rule) error { return nil }
func (readOnlyStore) DeleteRule(context.Context, uuid.UUID) error { return nil }
func (readOnlyStore) UpdateRuleFired(context.Context, uuid.UUID, time.Time) error { return nil }
func (readOnlyStore) UpdateGenerationStats(context.Context, domain.GenerationStats) error { return nil }
