package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Источники выданных действий.
const (
	SourceBroadcast = "broadcast"
	SourceDeadline  = "deadline"
)

var (
	// ActionsDispatched — действия, выданные планировщиком.
	ActionsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibeweaver_actions_dispatched_total",
		Help: "Actions released by the scheduler, by source",
	}, []string{"source"})

	// AgendaDepth — число ожидающих дедлайн-записей по сессиям.
	AgendaDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vibeweaver_agenda_depth",
		Help: "Pending deadline entries per session",
	}, []string{"session"})

	// StoreErrors — ошибки хранилища, не прервавшие планирование.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibeweaver_store_errors_total",
		Help: "Store operation failures, by operation",
	}, []string{"op"})

	// GenerationEstimate — текущая оценка времени генерации.
	GenerationEstimate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vibeweaver_generation_estimate_ms",
		Help: "Running mean generation time per space in milliseconds",
	}, []string{"space"})

	// Broadcasts — принятые события шины.
	Broadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibeweaver_broadcasts_total",
		Help: "Broadcasts received from the bus, by kind",
	}, []string{"kind"})

	// DeadlineBlocked — проверки дедлайнов, остановленные занятым GPU.
	DeadlineBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibeweaver_deadline_blocked_total",
		Help: "Deadline checks held back by GPU backpressure",
	})
)
