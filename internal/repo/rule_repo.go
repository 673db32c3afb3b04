package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/vibeweaver/internal/domain"
)

// RuleRepo — репозиторий для работы с rules.
type RuleRepo struct {
	pool *pgxpool.Pool
}

// NewRuleRepo создаёт новый RuleRepo.
func NewRuleRepo(pool *pgxpool.Pool) *RuleRepo {
	return &RuleRepo{pool: pool}
}

// RuleFilter — фильтр для списка правил.
type RuleFilter struct {
	SessionID   *uuid.UUID
	TriggerType domain.TriggerType
	Enabled     *bool
	Limit       int
	Offset      int
}

const ruleColumns = `id, session_id, trigger, action, priority, enabled, one_shot,
		       fired_count, last_fired_at, created_at`

// Insert создаёт правило.
func (r *RuleRepo) Insert(ctx context.Context, rule *domain.Rule) error {
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
		                   enabled, one_shot, fired_count, last_fired_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query,
		rule.ID,
		rule.SessionID,
		string(rule.Trigger.Category()),
		triggerJSON,
		actionJSON,
		int16(rule.Priority),
		rule.Enabled(),
		rule.OneShot,
		int64(rule.FiredCount),
		rule.LastFiredAt,
		rule.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// GetByID возвращает правило по ID.
func (r *RuleRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = $1`
	rule, err := scanRule(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// ListBySession возвращает правила сессии в порядке создания.
func (r *RuleRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Rule, error) {
	return r.List(ctx, RuleFilter{SessionID: &sessionID})
}

// List возвращает правила с фильтрацией.
func (r *RuleRepo) List(ctx context.Context, filter RuleFilter) ([]domain.Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE ($1::uuid IS NULL OR session_id = $1)
		  AND ($2::text IS NULL OR trigger_type = $2)
		  AND ($3::boolean IS NULL OR enabled = $3)
		ORDER BY created_at, id
		LIMIT $4 OFFSET $5
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.SessionID),
		nullString(string(filter.TriggerType)),
		filter.Enabled,
		nullLimit(filter.Limit),
		filter.Offset,
	)
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

// Delete удаляет правило.
func (r *RuleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateFired увеличивает счётчик срабатываний и выставляет last_fired_at.
func (r *RuleRepo) UpdateFired(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE rules
		SET fired_count = fired_count + 1, last_fired_at = $2
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("update rule fired: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEnabled включает или выключает правило.
func (r *RuleRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	result, err := r.pool.Exec(ctx, `UPDATE rules SET enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("set rule enabled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanRule сканирует строку (Row или Rows) в Rule.
func scanRule(row pgx.Row) (*domain.Rule, error) {
	var rule domain.Rule
	var triggerJSON, actionJSON []byte
	var priority int16
	var firedCount int64
	var enabled bool

	err := row.Scan(
		&rule.ID,
		&rule.SessionID,
		&triggerJSON,
		&actionJSON,
		&priority,
		&enabled,
		&rule.OneShot,
		&firedCount,
		&rule.LastFiredAt,
		&rule.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}

	if err := json.Unmarshal(triggerJSON, &rule.Trigger); err != nil {
		return nil, fmt.Errorf("unmarshal trigger: %w", err)
	}
	if err := json.Unmarshal(actionJSON, &rule.Action); err != nil {
		return nil, fmt.Errorf("unmarshal action: %w", err)
	}
	rule.Priority = domain.Priority(priority)
	rule.Disabled = !enabled
	rule.FiredCount = uint64(firedCount)

	return &rule, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}

// nullLimit — LIMIT NULL означает "без ограничения".
func nullLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
