package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/vibeweaver/internal/domain"
)

// StatsRepo — репозиторий статистики времени генерации.
type StatsRepo struct {
	pool *pgxpool.Pool
}

// NewStatsRepo создаёт новый StatsRepo.
func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

// Upsert записывает статистику пространства, заменяя предыдущую.
func (r *StatsRepo) Upsert(ctx context.Context, stats domain.GenerationStats) error {
	query := `
		INSERT INTO generation_stats (space, avg_duration_ms, sample_count, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (space) DO UPDATE
		SET avg_duration_ms = EXCLUDED.avg_duration_ms,
		    sample_count    = EXCLUDED.sample_count,
		    updated_at      = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query, stats.Space, stats.AvgDurationMs, int64(stats.SampleCount))
	if err != nil {
		return fmt.Errorf("upsert generation stats: %w", err)
	}
	return nil
}

// Get возвращает статистику пространства.
func (r *StatsRepo) Get(ctx context.Context, space string) (*domain.GenerationStats, error) {
	query := `
		SELECT space, avg_duration_ms, sample_count
		FROM generation_stats
		WHERE space = $1
	`
	var stats domain.GenerationStats
	var count int64
	err := r.pool.QueryRow(ctx, query, space).Scan(&stats.Space, &stats.AvgDurationMs, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get generation stats: %w", err)
	}
	stats.SampleCount = uint64(count)
	return &stats, nil
}

// List возвращает статистику всех пространств.
func (r *StatsRepo) List(ctx context.Context) ([]domain.GenerationStats, error) {
	query := `
		SELECT space, avg_duration_ms, sample_count
		FROM generation_stats
		ORDER BY space
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list generation stats: %w", err)
	}
	defer rows.Close()

	var out []domain.GenerationStats
	for rows.Next() {
		var stats domain.GenerationStats
		var count int64
		if err := rows.Scan(&stats.Space, &stats.AvgDurationMs, &count); err != nil {
			return nil, fmt.Errorf("scan generation stats: %w", err)
		}
		stats.SampleCount = uint64(count)
		out = append(out, stats)
	}
	return out, rows.Err()
}
