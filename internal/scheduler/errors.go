package scheduler

import "errors"

// Ошибки планировщика.
var (
	// ErrNotDeadlineTrigger — в ScheduleDeadline передано правило без дедлайн-триггера.
	ErrNotDeadlineTrigger = errors.New("rule trigger is not a deadline")

	// ErrInvalidDeadline — дедлайн не является конечным числом.
	ErrInvalidDeadline = errors.New("invalid deadline beat")

	// ErrRuleDisabled — выключенное правило нельзя поставить в agenda.
	ErrRuleDisabled = errors.New("rule is disabled")

	// ErrAlreadyScheduled — правило уже стоит в agenda.
	ErrAlreadyScheduled = errors.New("rule already scheduled")

	// ErrRuleNotFound — правило не найдено ни в памяти, ни в хранилище.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrSessionMismatch — правило принадлежит другой сессии.
	ErrSessionMismatch = errors.New("rule belongs to another session")

	// ErrInvalidTempo — темп должен быть положительным конечным числом.
	ErrInvalidTempo = errors.New("invalid tempo")
)
