package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/vibeweaver/internal/domain"
)

// Store — долговременное хранилище правил и статистики генерации.
//
// Реализации: repo.Store (PostgreSQL) и sqlite.Store (локальный файл).
// Все методы могут вернуть ошибку; для живого планирования
// ошибки хранилища не фатальны — состояние в памяти остаётся верным.
type Store interface {
	// ListRules возвращает все правила сессии.
	ListRules(ctx context.Context, sessionID uuid.UUID) ([]domain.Rule, error)

	// InsertRule сохраняет новое правило.
	InsertRule(ctx context.Context, rule *domain.Rule) error

	// DeleteRule удаляет правило. Если правила нет — repo.ErrNotFound.
	DeleteRule(ctx context.Context, id uuid.UUID) error

	// UpdateRuleFired увеличивает fired_count и записывает last_fired_at.
	UpdateRuleFired(ctx context.Context, id uuid.UUID, at time.Time) error

	// UpdateGenerationStats сохраняет текущее среднее для пространства.
	UpdateGenerationStats(ctx context.Context, stats domain.GenerationStats) error

	// ListGenerationStats возвращает статистику по всем пространствам.
	ListGenerationStats(ctx context.Context) ([]domain.GenerationStats, error)
}
