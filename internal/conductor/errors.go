package conductor

import "errors"

// Ошибки conductor.
var (
	// ErrSessionNotFound — сессия не открыта.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists — сессия уже открыта.
	ErrSessionExists = errors.New("session already open")

	// ErrSessionClosed — сессия закрылась во время обработки команды.
	ErrSessionClosed = errors.New("session closed")

	// ErrUnknownCommand — неизвестный тип команды.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrConductorStopped — conductor остановлен.
	ErrConductorStopped = errors.New("conductor stopped")
)
