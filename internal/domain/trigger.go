package domain

import (
	"fmt"
	"strings"
)

// TriggerType — категория триггера.
//
// Каждый вариант Trigger относится ровно к одной категории.
// Категория Deadline никогда не ищется по broadcast —
// такие правила участвуют только в agenda планировщика.
type TriggerType string

const (
	// TriggerBeat — срабатывание каждые N долей.
	TriggerBeat TriggerType = "beat"

	// TriggerMarker — срабатывание при достижении именованного маркера.
	TriggerMarker TriggerType = "marker"

	// TriggerDeadline — действие должно завершиться к указанной доле.
	TriggerDeadline TriggerType = "deadline"

	// TriggerArtifact — срабатывание при создании артефакта (опционально с тегом).
	TriggerArtifact TriggerType = "artifact"

	// TriggerJobComplete — срабатывание при завершении конкретного job.
	TriggerJobComplete TriggerType = "job_complete"

	// TriggerTransport — срабатывание при смене состояния транспорта.
	TriggerTransport TriggerType = "transport"
)

// TriggerTypes — все категории в фиксированном порядке.
var TriggerTypes = []TriggerType{
	TriggerBeat,
	TriggerMarker,
	TriggerDeadline,
	TriggerArtifact,
	TriggerJobComplete,
	TriggerTransport,
}

// ParseTriggerType парсит строку в TriggerType.
func ParseTriggerType(s string) (TriggerType, error) {
	t := TriggerType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TriggerBeat, TriggerMarker, TriggerDeadline, TriggerArtifact, TriggerJobComplete, TriggerTransport:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTrigger, s)
	}
}

// Trigger — условие срабатывания правила ("когда").
//
// Закрытый набор вариантов: поле Type определяет,
// какие из остальных полей имеют смысл.
//
//	beat         → Divisor
//	marker       → Name
//	deadline     → Beat
//	artifact     → Tag (nil = любой артефакт)
//	job_complete → JobID
//	transport    → State
type Trigger struct {
	Type TriggerType `json:"type"`

	// Divisor — срабатывать на долях, кратных Divisor. 0 никогда не срабатывает.
	Divisor uint32 `json:"divisor,omitempty"`

	// Name — имя маркера.
	Name string `json:"name,omitempty"`

	// Beat — доля, к которой действие должно быть готово.
	Beat float64 `json:"beat,omitempty"`

	// Tag — тег артефакта.
	Tag *string `json:"tag,omitempty"`

	// JobID — идентификатор job.
	JobID string `json:"job_id,omitempty"`

	// State — состояние транспорта ("playing", "stopped", ...).
	State string `json:"state,omitempty"`
}

// BeatTrigger создаёт триггер на каждые divisor долей.
func BeatTrigger(divisor uint32) Trigger {
	return Trigger{Type: TriggerBeat, Divisor: divisor}
}

// MarkerTrigger создаёт триггер на маркер.
func MarkerTrigger(name string) Trigger {
	return Trigger{Type: TriggerMarker, Name: name}
}

// DeadlineTrigger создаёт дедлайн-триггер.
func DeadlineTrigger(beat float64) Trigger {
	return Trigger{Type: TriggerDeadline, Beat: beat}
}

// ArtifactTrigger создаёт триггер на любой артефакт.
func ArtifactTrigger() Trigger {
	return Trigger{Type: TriggerArtifact}
}

// TaggedArtifactTrigger создаёт триггер на артефакт с тегом.
func TaggedArtifactTrigger(tag string) Trigger {
	return Trigger{Type: TriggerArtifact, Tag: &tag}
}

// JobCompleteTrigger создаёт триггер на завершение job.
func JobCompleteTrigger(jobID string) Trigger {
	return Trigger{Type: TriggerJobComplete, JobID: jobID}
}

// TransportTrigger создаёт триггер на состояние транспорта.
func TransportTrigger(state string) Trigger {
	return Trigger{Type: TriggerTransport, State: state}
}

// Category возвращает категорию триггера для индекса.
func (t Trigger) Category() TriggerType {
	return t.Type
}

// IsDeadline возвращает true для дедлайн-триггера.
func (t Trigger) IsDeadline() bool {
	return t.Type == TriggerDeadline
}

// Validate проверяет, что тип триггера известен и нужные поля заданы.
func (t Trigger) Validate() error {
	switch t.Type {
	case TriggerBeat, TriggerDeadline, TriggerArtifact:
		return nil
	case TriggerMarker:
		if t.Name == "" {
			return fmt.Errorf("%w: marker trigger requires name", ErrInvalidTrigger)
		}
	case TriggerJobComplete:
		if t.JobID == "" {
			return fmt.Errorf("%w: job_complete trigger requires job_id", ErrInvalidTrigger)
		}
	case TriggerTransport:
		if t.State == "" {
			return fmt.Errorf("%w: transport trigger requires state", ErrInvalidTrigger)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTrigger, t.Type)
	}
	return nil
}

// String возвращает краткое описание триггера для логов и CLI.
func (t Trigger) String() string {
	switch t.Type {
	case TriggerBeat:
		return fmt.Sprintf("beat/%d", t.Divisor)
	case TriggerMarker:
		return "marker:" + t.Name
	case TriggerDeadline:
		return fmt.Sprintf("deadline@%g", t.Beat)
	case TriggerArtifact:
		if t.Tag == nil {
			return "artifact:*"
		}
		return "artifact:" + *t.Tag
	case TriggerJobComplete:
		return "job:" + t.JobID
	case TriggerTransport:
		return "transport:" + t.State
	default:
		return string(t.Type)
	}
}
