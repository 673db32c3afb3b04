package domain

import "errors"

// Ошибки доменной модели.
var (
	// ErrUnknownTrigger — неизвестный тип триггера.
	ErrUnknownTrigger = errors.New("unknown trigger type")

	// ErrInvalidTrigger — у триггера не заданы обязательные поля.
	ErrInvalidTrigger = errors.New("invalid trigger")

	// ErrUnknownPriority — строка не соответствует ни одному приоритету.
	ErrUnknownPriority = errors.New("unknown priority")

	// ErrInvalidMargin — некорректный коэффициент запаса.
	ErrInvalidMargin = errors.New("invalid safety margin")

	// ErrInvalidAction — у действия не задан тип.
	ErrInvalidAction = errors.New("invalid action")
)
