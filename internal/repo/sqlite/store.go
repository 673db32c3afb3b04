// Package sqlite — хранилище правил и статистики на SQLite.
//
// Тот же контракт, что у repo.Store (PostgreSQL), для локального
// режима CLI и тестов. Ошибки — repo.ErrNotFound / repo.ErrAlreadyExists.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/shaiso/vibeweaver/internal/repo"
)

//go:embed schema.sql
var schemaSQL string

// Store — SQLite-хранилище. Один writer: SQLite не допускает параллельной записи.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open открывает (или создаёт) базу по пути и применяет схему.
// ":memory:" — база в памяти.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close закрывает базу.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

const ruleColumns = `id, session_id, trigger, action, priority, enabled, one_shot,
		fired_count, last_fired_at, created_at`

// InsertRule сохраняет правило.
func (s *Store) InsertRule(ctx context.Context, rule *domain.Rule) error {
	triggerJSON, err := json.Marshal(rule.Trigger)
	if err != nil {
		return fmt.Errorf("marshal trigger: %w", err)
	}
	actionJSON, err := json.Marshal(rule.Action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}

	query := `
		INSERT INTO rules (id, session_id, trigger_type, trigger, action, priority,
		                   enabled, one_shot, fired_count, last_fired_at, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		        (SELECT COALESCE(MAX(seq), 0) + 1 FROM rules))
	`
	_, err = s.db.ExecContext(ctx, query,
		rule.ID.String(),
		rule.SessionID.String(),
		string(rule.Trigger.Category()),
		string(triggerJSON),
		string(actionJSON),
		int(rule.Priority),
		rule.Enabled(),
		rule.OneShot,
		int64(rule.FiredCount),
		formatTime(rule.LastFiredAt),
		rule.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if isConstraint(err) {
		return repo.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// GetRule возвращает правило по ID.
func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (*domain.Rule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id.String())
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	return rule, err
}

// ListRules возвращает правила сессии в порядке добавления.
func (s *Store) ListRules(ctx context.Context, sessionID uuid.UUID) ([]domain.Rule, error) {
	return s.listRules(ctx, `SELECT `+ruleColumns+` FROM rules WHERE session_id = ? ORDER BY seq`, sessionID.String())
}

// ListAllRules возвращает правила всех сессий.
func (s *Store) ListAllRules(ctx context.Context) ([]domain.Rule, error) {
	return s.listRules(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY session_id, seq`)
}

func (s *Store) listRules(ctx context.Context, query string, args ...any) ([]domain.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// DeleteRule удаляет правило.
func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	return s.execOne(ctx, "delete rule", `DELETE FROM rules WHERE id = ?`, id.String())
}

// UpdateRuleFired увеличивает счётчик срабатываний.
func (s *Store) UpdateRuleFired(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.execOne(ctx, "update rule fired",
		`UPDATE rules SET fired_count = fired_count + 1, last_fired_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano), id.String())
}

// SetRuleEnabled включает или выключает правило.
func (s *Store) SetRuleEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return s.execOne(ctx, "set rule enabled", `UPDATE rules SET enabled = ? WHERE id = ?`, enabled, id.String())
}

// UpdateGenerationStats записывает статистику пространства.
func (s *Store) UpdateGenerationStats(ctx context.Context, stats domain.GenerationStats) error {
	query := `
		INSERT INTO generation_stats (space, avg_duration_ms, sample_count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (space) DO UPDATE
		SET avg_duration_ms = excluded.avg_duration_ms,
		    sample_count    = excluded.sample_count,
		    updated_at      = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		stats.Space,
		stats.AvgDurationMs,
		int64(stats.SampleCount),
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert generation stats: %w", err)
	}
	return nil
}

// ListGenerationStats возвращает статистику всех пространств.
func (s *Store) ListGenerationStats(ctx context.Context) ([]domain.GenerationStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT space, avg_duration_ms, sample_count FROM generation_stats ORDER BY space`)
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

func (s *Store) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (*domain.Rule, error) {
	var (
		rule                    domain.Rule
		id, sessionID           string
		triggerJSON, actionJSON string
		priority                int
		enabled                 bool
		firedCount              int64
		lastFiredAt             sql.NullString
		createdAt               string
	)

	err := row.Scan(
		&id,
		&sessionID,
		&triggerJSON,
		&actionJSON,
		&priority,
		&enabled,
		&rule.OneShot,
		&firedCount,
		&lastFiredAt,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}

	if rule.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse rule id: %w", err)
	}
	if rule.SessionID, err = uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	if err := json.Unmarshal([]byte(triggerJSON), &rule.Trigger); err != nil {
		return nil, fmt.Errorf("unmarshal trigger: %w", err)
	}
	if err := json.Unmarshal([]byte(actionJSON), &rule.Action); err != nil {
		return nil, fmt.Errorf("unmarshal action: %w", err)
	}
	if rule.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if lastFiredAt.Valid {
		at, err := time.Parse(time.RFC3339Nano, lastFiredAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_fired_at: %w", err)
		}
		rule.LastFiredAt = &at
	}
	rule.Priority = domain.Priority(priority)
	rule.Disabled = !enabled
	rule.FiredCount = uint64(firedCount)

	return &rule, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
