// vibeweaver-scheduler — сервис планировщика правил сессий.
//
// Scheduler:
//   - Загружает правила сессий из хранилища (PostgreSQL или SQLite)
//   - Получает события шины из RabbitMQ (vibeweaver.broadcasts)
//   - Принимает команды (vibeweaver.control)
//   - Выдаёт действия по правилам и дедлайнам (vibeweaver.actions)
//   - Перечитывает секцию tuning конфигурации на лету
//
// Конфигурация: файл из VIBEWEAVER_CONFIG (необязателен) и переменные окружения.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/vibeweaver/internal/api"
	"github.com/shaiso/vibeweaver/internal/conductor"
	"github.com/shaiso/vibeweaver/internal/config"
	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/shaiso/vibeweaver/internal/mq"
	"github.com/shaiso/vibeweaver/internal/repo"
	"github.com/shaiso/vibeweaver/internal/repo/sqlite"
	"github.com/shaiso/vibeweaver/internal/scheduler"
	"github.com/shaiso/vibeweaver/internal/telemetry"
)

// leaderPollInterval — как часто резервный экземпляр пытается стать лидером.
const leaderPollInterval = time.Second

func main() {
	configPath := os.Getenv("VIBEWEAVER_CONFIG")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLoggerWith(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting vibeweaver-scheduler", "config", configPath)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, lock, closeStore, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// RabbitMQ
	var sink conductor.ActionSink
	mqConn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, actions will only be logged", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		sink = mq.NewPublisher(mqConn, logger)
	}

	margins, err := cfg.Tuning.Margins()
	if err != nil {
		logger.Error("invalid tuning", "error", err)
		os.Exit(1)
	}
	sessions, err := cfg.Conductor.SessionIDs()
	if err != nil {
		logger.Error("invalid sessions", "error", err)
		os.Exit(1)
	}

	cond := conductor.New(conductor.Config{
		Store:            store,
		Sink:             sink,
		Conn:             mqConn,
		ClockInterval:    cfg.Conductor.ClockInterval,
		IdleTimeout:      cfg.Conductor.IdleTimeout,
		EvictionSchedule: cfg.Conductor.EvictionSchedule,
		Sessions:         sessions,
		Tuning:           toConductorTuning(cfg.Tuning, margins),
		Logger:           logger,
	})

	// HTTP mux: /healthz + /metrics + /api/v1
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	api.NewHandler(api.Config{Sessions: cond, Logger: logger}).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// С PostgreSQL работает один лидер: очереди общие для всех экземпляров
	if lock != nil {
		if err := waitForLeadership(ctx, lock, logger); err != nil {
			logger.Info("shutdown before becoming leader")
			shutdownHTTP(srv, logger)
			return
		}
		defer func() {
			releaseCtx, cancelRelease := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelRelease()
			if err := lock.Release(releaseCtx); err != nil {
				logger.Warn("failed to release leader lock", "error", err)
			}
		}()
	}

	if err := cond.Start(ctx); err != nil {
		logger.Error("failed to start conductor", "error", err)
		os.Exit(1)
	}

	if configPath != "" {
		go func() {
			err := config.WatchTuning(ctx, configPath, logger, func(t config.Tuning) {
				m, err := t.Margins()
				if err != nil {
					logger.Warn("ignoring tuning", "error", err)
					return
				}
				if err := cond.ApplyTuning(toConductorTuning(t, m)); err != nil {
					logger.Warn("failed to apply tuning", "error", err)
				}
			})
			if err != nil {
				logger.Warn("tuning watcher stopped", "error", err)
			}
		}()
	}

	// Ожидаем сигнал завершения
	<-ctx.Done()

	cond.Stop()
	shutdownHTTP(srv, logger)
	logger.Info("vibeweaver-scheduler stopped")
}

// openStore открывает SQLite, если задан путь, иначе PostgreSQL.
// Для PostgreSQL возвращает advisory lock лидера.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (scheduler.Store, *repo.AdvisoryLock, func(), error) {
	if cfg.SQLitePath != "" {
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("sqlite store opened", "path", cfg.SQLitePath)
		return store, nil, func() { store.Close() }, nil
	}

	pool, err := repo.NewPool(ctx, cfg.URL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := repo.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	logger.Info("database connected")

	return repo.NewStore(pool), repo.NewAdvisoryLock(pool, repo.SchedulerLockKey), pool.Close, nil
}

func waitForLeadership(ctx context.Context, lock *repo.AdvisoryLock, logger *slog.Logger) error {
	ticker := time.NewTicker(leaderPollInterval)
	defer ticker.Stop()

	waiting := false
	for {
		ok, err := lock.TryAcquire(ctx)
		switch {
		case err != nil:
			logger.Warn("leader lock error", "error", err)
		case ok:
			logger.Info("became leader")
			return nil
		case !waiting:
			logger.Info("another instance is leader, standing by")
			waiting = true
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func shutdownHTTP(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}
}

func toConductorTuning(t config.Tuning, margins domain.SafetyMargins) conductor.Tuning {
	return conductor.Tuning{
		Margins:           margins,
		BeatTolerance:     t.BeatTolerance,
		DefaultTempoBPM:   t.DefaultTempoBPM,
		DefaultEstimateMs: t.DefaultEstimateMs,
	}
}
