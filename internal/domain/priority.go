package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Priority — уровень важности правила.
//
// Полностью упорядочен: Critical > High > Normal > Low > Idle.
// Числовое значение растёт вместе с важностью, поэтому
// обычные операторы сравнения дают нужный порядок.
type Priority int

const (
	PriorityIdle Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// DefaultPriority — приоритет нового правила.
const DefaultPriority = PriorityNormal

// Priorities — все уровни от самого важного к наименее важному.
var Priorities = []Priority{
	PriorityCritical,
	PriorityHigh,
	PriorityNormal,
	PriorityLow,
	PriorityIdle,
}

// String возвращает строковое представление Priority.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityIdle:
		return "idle"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority парсит строку в Priority (без учёта регистра).
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return PriorityCritical, nil
	case "high":
		return PriorityHigh, nil
	case "normal", "":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "idle":
		return PriorityIdle, nil
	default:
		return DefaultPriority, fmt.Errorf("%w: %q", ErrUnknownPriority, s)
	}
}

// MarshalJSON сериализует Priority как строку.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON читает Priority из строки.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("priority must be a string: %w", err)
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// UnmarshalText читает Priority из текста (ключи map в YAML/JSON).
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalText нужен для ключей map[Priority]... .
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// SafetyMargins — коэффициенты запаса по приоритетам.
//
// Оценка времени генерации умножается на коэффициент,
// чтобы более важная работа стартовала раньше.
// Значения ≥ 1.0; точные значения — конфигурация развёртывания.
type SafetyMargins map[Priority]float64

// DefaultSafetyMargins возвращает коэффициенты по умолчанию.
func DefaultSafetyMargins() SafetyMargins {
	return SafetyMargins{
		PriorityCritical: 1.5,
		PriorityHigh:     1.2,
		PriorityNormal:   1.0,
		PriorityLow:      1.0,
		PriorityIdle:     1.0,
	}
}

// Margin возвращает коэффициент для приоритета.
// Для незаданного уровня — 1.0 (без запаса).
func (m SafetyMargins) Margin(p Priority) float64 {
	if v, ok := m[p]; ok {
		return v
	}
	return 1.0
}

// Validate проверяет, что все коэффициенты ≥ 1.0 и не убывают с ростом приоритета.
func (m SafetyMargins) Validate() error {
	prev := 0.0
	for i := len(Priorities) - 1; i >= 0; i-- {
		p := Priorities[i]
		v := m.Margin(p)
		if v < 1.0 {
			return fmt.Errorf("%w: %s margin %g is below 1.0", ErrInvalidMargin, p, v)
		}
		if v < prev {
			return fmt.Errorf("%w: %s margin %g is below a lower priority's %g", ErrInvalidMargin, p, v, prev)
		}
		prev = v
	}
	return nil
}

// Clone возвращает копию коэффициентов.
func (m SafetyMargins) Clone() SafetyMargins {
	out := make(SafetyMargins, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
