package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Rule — пара триггер → действие в рамках сессии.
//
// Создаётся явно (AddRule), изменяется только отметкой срабатывания
// (MarkFired), удаляется явно (RemoveRule) или автоматически после
// первого совпадения, если OneShot.
type Rule struct {
	// ID — уникальный идентификатор правила.
	ID uuid.UUID `json:"id"`

	// SessionID — сессия-владелец.
	SessionID uuid.UUID `json:"session_id"`

	// Trigger — когда срабатывать.
	Trigger Trigger `json:"trigger"`

	// Action — что сделать. Для планировщика непрозрачно.
	Action Action `json:"action"`

	// Priority — порядок внутри категории и tie-break в agenda.
	Priority Priority `json:"priority"`

	// Disabled — выключенные правила никогда не срабатывают.
	// Нулевое значение — включено.
	Disabled bool `json:"disabled,omitempty"`

	// OneShot — удалить правило сразу после первого срабатывания.
	OneShot bool `json:"one_shot"`

	// FiredCount — сколько раз правило сработало.
	FiredCount uint64 `json:"fired_count"`

	// LastFiredAt — время последнего срабатывания.
	LastFiredAt *time.Time `json:"last_fired_at,omitempty"`

	// CreatedAt — время создания правила.
	CreatedAt time.Time `json:"created_at"`
}

// NewRule создаёт включённое правило с приоритетом по умолчанию.
func NewRule(sessionID uuid.UUID, trigger Trigger, action Action) Rule {
	return Rule{
		ID:        uuid.New(),
		SessionID: sessionID,
		Trigger:   trigger,
		Action:    action,
		Priority:  DefaultPriority,
		CreatedAt: time.Now().UTC(),
	}
}

// Enabled сообщает, может ли правило сработать.
func (r Rule) Enabled() bool {
	return !r.Disabled
}

// UnmarshalJSON заполняет пропущенные поля значениями NewRule:
// без "priority" — DefaultPriority. Поле "enabled" принимается
// наравне с "disabled" и при наличии имеет приоритет.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	aux := struct {
		*plain
		Priority *Priority `json:"priority"`
		Enabled  *bool     `json:"enabled"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.Priority = DefaultPriority
	if aux.Priority != nil {
		r.Priority = *aux.Priority
	}
	if aux.Enabled != nil {
		r.Disabled = !*aux.Enabled
	}
	return nil
}

// WithPriority возвращает копию правила с другим приоритетом.
func (r Rule) WithPriority(p Priority) Rule {
	r.Priority = p
	return r
}

// AsOneShot возвращает копию правила, которое сработает один раз.
func (r Rule) AsOneShot() Rule {
	r.OneShot = true
	return r
}

// MarkFired отмечает срабатывание правила.
func (r *Rule) MarkFired(at time.Time) {
	r.FiredCount++
	r.LastFiredAt = &at
}

// PendingAction — запись agenda: дедлайн-действие, ожидающее старта.
//
// Создаётся ScheduleDeadline, удаляется при выдаче из CheckDeadlines.
type PendingAction struct {
	RuleID   uuid.UUID `json:"rule_id"`
	Action   Action    `json:"action"`
	Priority Priority  `json:"priority"`

	// DeadlineBeat — доля, к которой результат должен быть готов.
	DeadlineBeat *float64 `json:"deadline_beat,omitempty"`

	// StartByBeat — доля, не позже которой нужно начать работу.
	StartByBeat float64 `json:"start_by_beat"`
}

// GenerationStats — наблюдаемое среднее время генерации для пространства.
//
// Одна запись на пространство, создаётся при первом замере
// и никогда не удаляется.
type GenerationStats struct {
	Space         string  `json:"space"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	SampleCount   uint64  `json:"sample_count"`
}
