package mq

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/vibeweaver/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Команды планировщику (vibeweaver.control).
const (
	MessageTypeSessionOpen      MessageType = "session.open"
	MessageTypeSessionClose     MessageType = "session.close"
	MessageTypeRuleAdd          MessageType = "rule.add"
	MessageTypeRuleRemove       MessageType = "rule.remove"
	MessageTypeDeadlineSchedule MessageType = "deadline.schedule"
	MessageTypeGenerationRecord MessageType = "generation.record"
	MessageTypeTempoSet         MessageType = "tempo.set"
)

// MessageTypeActionsDispatched — действия, выданные планировщиком (vibeweaver.actions).
const MessageTypeActionsDispatched MessageType = "actions.dispatched"

// Message — конверт команд и действий.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// SessionPayload — session.open / session.close.
type SessionPayload struct {
	SessionID uuid.UUID `json:"session_id"`
}

// RuleAddPayload — rule.add.
type RuleAddPayload struct {
	SessionID uuid.UUID   `json:"session_id"`
	Rule      domain.Rule `json:"rule"`
}

// RuleRemovePayload — rule.remove.
type RuleRemovePayload struct {
	SessionID uuid.UUID `json:"session_id"`
	RuleID    uuid.UUID `json:"rule_id"`
}

// DeadlineSchedulePayload — deadline.schedule.
// Если Space пуст, берётся из параметров действия.
type DeadlineSchedulePayload struct {
	SessionID uuid.UUID   `json:"session_id"`
	Rule      domain.Rule `json:"rule"`
	Space     string      `json:"space,omitempty"`
}

// GenerationRecordPayload — generation.record.
type GenerationRecordPayload struct {
	SessionID  uuid.UUID `json:"session_id"`
	Space      string    `json:"space"`
	DurationMs uint64    `json:"duration_ms"`
}

// TempoSetPayload — tempo.set.
type TempoSetPayload struct {
	SessionID uuid.UUID `json:"session_id"`
	TempoBPM  float64   `json:"tempo_bpm"`
}

// ActionsPayload — actions.dispatched.
type ActionsPayload struct {
	SessionID     uuid.UUID       `json:"session_id"`
	Source        string          `json:"source"`
	PositionBeats float64         `json:"position_beats"`
	Actions       []domain.Action `json:"actions"`
}
