package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/vibeweaver/internal/scheduler"
)

// SessionReader — состояние открытых сессий (реализует conductor.Conductor).
type SessionReader interface {
	Sessions() []uuid.UUID
	Snapshot(ctx context.Context, sessionID uuid.UUID) (scheduler.Snapshot, error)
	GPUBusy() bool
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	sessions SessionReader
	logger   *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Sessions SessionReader
	Logger   *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions: cfg.Sessions,
		logger:   logger,
	}
}
