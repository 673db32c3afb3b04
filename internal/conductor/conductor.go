package conductor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/shaiso/vibeweaver/internal/mq"
	"github.com/shaiso/vibeweaver/internal/scheduler"
	"github.com/shaiso/vibeweaver/internal/telemetry"
)

// Default configuration values.
const (
	defaultClockInterval    = 50 * time.Millisecond
	defaultIdleTimeout      = 30 * time.Minute
	defaultEvictionSchedule = "@every 1m"
	defaultCallTimeout      = 5 * time.Second
)

// ActionSink принимает выданные действия (в проде — mq.Publisher).
type ActionSink interface {
	PublishActions(ctx context.Context, sessionID uuid.UUID, source string, positionBeats float64, actions []domain.Action) error
}

// Tuning — параметры планирования, применяемые ко всем сессиям.
type Tuning struct {
	Margins           domain.SafetyMargins
	BeatTolerance     float64
	DefaultTempoBPM   float64
	DefaultEstimateMs float64
}

// Conductor держит открытые сессии и связывает их с шиной.
type Conductor struct {
	store  scheduler.Store
	sink   ActionSink
	conn   *mq.Connection
	logger *slog.Logger
	now    func() time.Time

	clockInterval    time.Duration
	idleTimeout      time.Duration
	evictionSchedule string
	initialSessions  []uuid.UUID

	gpu *GPUTracker

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
	tuning   Tuning

	broadcastConsumer *mq.Consumer
	controlConsumer   *mq.Consumer
	cron              *cron.Cron

	// Lifecycle
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Conductor.
type Config struct {
	// Store — хранилище правил и статистики.
	Store scheduler.Store

	// Sink — получатель действий; nil — действия только логируются.
	Sink ActionSink

	// Conn — соединение с RabbitMQ; nil — без consumers (команды через методы).
	Conn *mq.Connection

	ClockInterval    time.Duration // период проверки дедлайнов (default: 50ms)
	IdleTimeout      time.Duration // простой до закрытия сессии (default: 30m, <0 — не закрывать)
	EvictionSchedule string        // cron-расписание проверки простоя (default: @every 1m)

	// Sessions — сессии, открываемые при Start.
	Sessions []uuid.UUID

	Tuning Tuning

	// GPUStaleAfter — время жизни job без событий (default: 10m).
	GPUStaleAfter time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// New создаёт Conductor.
func New(cfg Config) *Conductor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	clockInterval := cfg.ClockInterval
	if clockInterval <= 0 {
		clockInterval = defaultClockInterval
	}

	idleTimeout := cfg.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = defaultIdleTimeout
	}

	evictionSchedule := cfg.EvictionSchedule
	if evictionSchedule == "" {
		evictionSchedule = defaultEvictionSchedule
	}

	tuning := cfg.Tuning
	if tuning.Margins == nil {
		tuning.Margins = domain.DefaultSafetyMargins()
	}

	return &Conductor{
		store:            instrument(cfg.Store),
		sink:             cfg.Sink,
		conn:             cfg.Conn,
		logger:           logger,
		now:              now,
		clockInterval:    clockInterval,
		idleTimeout:      idleTimeout,
		evictionSchedule: evictionSchedule,
		initialSessions:  cfg.Sessions,
		gpu:              NewGPUTracker(cfg.GPUStaleAfter, now),
		sessions:         make(map[uuid.UUID]*session),
		tuning:           tuning,
	}
}

// Start запускает Conductor.
//
// Запускает:
//   - Consumer для scheduler.broadcasts и scheduler.control (если есть Conn)
//   - cron-задачу закрытия простаивающих сессий
//   - Сессии из Config.Sessions
func (c *Conductor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.ctx = ctx
	c.cancelFunc = cancel

	c.logger.Info("starting conductor",
		"clock_interval", c.clockInterval,
		"idle_timeout", c.idleTimeout,
		"eviction_schedule", c.evictionSchedule,
	)

	for _, id := range c.initialSessions {
		if err := c.OpenSession(ctx, id); err != nil && !errors.Is(err, ErrSessionExists) {
			cancel()
			return fmt.Errorf("open session %s: %w", id, err)
		}
	}

	if c.idleTimeout > 0 {
		c.cron = cron.New(cron.WithParser(cronParser))
		if _, err := c.cron.AddFunc(c.evictionSchedule, func() { c.EvictIdle(ctx) }); err != nil {
			cancel()
			return fmt.Errorf("schedule eviction %q: %w", c.evictionSchedule, err)
		}
		c.cron.Start()
	}

	if c.conn != nil {
		c.startConsumers(ctx)
	}

	c.logger.Info("conductor started", "sessions", len(c.Sessions()))
	return nil
}

func (c *Conductor) startConsumers(ctx context.Context) {
	c.broadcastConsumer = mq.NewConsumer(c.conn, c.logger, mq.ConsumerConfig{
		Queue:    mq.QueueBroadcasts,
		Handler:  c.handleBroadcast,
		Prefetch: 100,
		RawBody:  true,
	})

	c.controlConsumer = mq.NewConsumer(c.conn, c.logger, mq.ConsumerConfig{
		Queue:    mq.QueueControl,
		Handler:  c.handleControl,
		Prefetch: 10,
	})

	for name, consumer := range map[string]*mq.Consumer{
		"broadcast": c.broadcastConsumer,
		"control":   c.controlConsumer,
	} {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error("consumer error", "consumer", name, "error", err)
			}
		}()
	}
}

// Stop останавливает consumers, cron и все сессии.
func (c *Conductor) Stop() {
	c.stoppedMu.Lock()
	c.stopped = true
	c.stoppedMu.Unlock()

	c.logger.Info("stopping conductor...")

	if c.cron != nil {
		<-c.cron.Stop().Done()
	}
	if c.broadcastConsumer != nil {
		c.broadcastConsumer.Stop()
	}
	if c.controlConsumer != nil {
		c.controlConsumer.Stop()
	}

	sessions := c.Sessions()
	for _, id := range sessions {
		_ = c.CloseSession(id)
	}

	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()

	c.logger.Info("conductor stopped", "sessions", len(sessions))
}

// IsStopped проверяет, остановлен ли Conductor.
func (c *Conductor) IsStopped() bool {
	c.stoppedMu.RLock()
	defer c.stoppedMu.RUnlock()
	return c.stopped
}

// OpenSession загружает правила сессии и запускает её горутину.
func (c *Conductor) OpenSession(ctx context.Context, id uuid.UUID) error {
	if c.IsStopped() || c.ctx == nil {
		return ErrConductorStopped
	}
	if c.lookup(id) != nil {
		return fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	c.mu.RLock()
	tuning := c.tuning
	c.mu.RUnlock()

	sched := scheduler.New(scheduler.Config{
		SessionID:         id,
		Store:             c.store,
		Logger:            telemetry.WithSessionID(c.logger, id.String()),
		Margins:           tuning.Margins,
		BeatTolerance:     tuning.BeatTolerance,
		DefaultEstimateMs: tuning.DefaultEstimateMs,
		TempoBPM:          tuning.DefaultTempoBPM,
		Now:               c.now,
	})
	if err := sched.LoadRules(ctx); err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	s := newSession(id, sched, NewClock(sched.Tempo()), c.now())

	c.mu.Lock()
	if _, exists := c.sessions[id]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	c.sessions[id] = s
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		s.run(c.ctx, c.clockInterval, c.releaseDeadlines)
	}()

	c.logger.Info("session opened",
		"session_id", id,
		"rules", sched.Rules().Len(),
	)
	return nil
}

// CloseSession останавливает горутину сессии. Дедлайн-записи сессии теряются.
func (c *Conductor) CloseSession(id uuid.UUID) error {
	c.mu.Lock()
	s, ok := c.sessions[id]
	delete(c.sessions, id)
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	close(s.stop)
	<-s.done
	telemetry.AgendaDepth.DeleteLabelValues(id.String())

	c.logger.Info("session closed", "session_id", id)
	return nil
}

// Sessions возвращает открытые сессии.
func (c *Conductor) Sessions() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	return ids
}

func (c *Conductor) lookup(id uuid.UUID) *session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions[id]
}

func (c *Conductor) openSessions() []*session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}

// withSession выполняет fn в горутине сессии.
func (c *Conductor) withSession(ctx context.Context, id uuid.UUID, fn func(*session) error) error {
	s := c.lookup(id)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.call(ctx, func(s *session) error {
		s.touch(c.now())
		return fn(s)
	})
}

// DispatchBroadcast передаёт событие шины всем открытым сессиям.
// Обработка асинхронная, порядок событий внутри сессии сохраняется.
func (c *Conductor) DispatchBroadcast(ctx context.Context, b domain.Broadcast) {
	telemetry.Broadcasts.WithLabelValues(string(b.Kind)).Inc()
	c.gpu.Observe(b)

	for _, s := range c.openSessions() {
		err := s.send(ctx, func(s *session) {
			now := c.now()
			s.clock.Observe(b, now)
			actions := s.sched.ProcessBroadcast(c.ctx, b)
			c.dispatch(s, telemetry.SourceBroadcast, s.clock.Position(now), actions)
		})
		if err != nil && !errors.Is(err, ErrSessionClosed) {
			c.logger.Warn("failed to deliver broadcast",
				"session_id", s.id,
				"kind", b.Kind,
				"error", err,
			)
		}
	}
}

// releaseDeadlines — тик часов сессии.
func (c *Conductor) releaseDeadlines(s *session) {
	position := s.clock.Position(c.now())
	busy := c.gpu.Busy()

	actions := s.sched.CheckDeadlines(position, busy)
	if busy {
		if next, ok := s.sched.NextDeadline(); ok && next.StartByBeat <= position {
			telemetry.DeadlineBlocked.Inc()
		}
	}
	telemetry.AgendaDepth.WithLabelValues(s.id.String()).Set(float64(s.sched.AgendaLen()))

	c.dispatch(s, telemetry.SourceDeadline, position, actions)
}

// dispatch публикует действия сессии. Ошибка публикации не возвращает действия в agenda.
func (c *Conductor) dispatch(s *session, source string, position float64, actions []domain.Action) {
	if len(actions) == 0 {
		return
	}
	s.touch(c.now())
	telemetry.ActionsDispatched.WithLabelValues(source).Add(float64(len(actions)))

	if c.sink == nil {
		c.logger.Info("actions released",
			"session_id", s.id,
			"source", source,
			"position_beats", position,
			"actions", len(actions),
		)
		return
	}

	if err := c.sink.PublishActions(c.ctx, s.id, source, position, actions); err != nil {
		c.logger.Error("failed to publish actions",
			"session_id", s.id,
			"source", source,
			"actions", len(actions),
			"error", err,
		)
	}
}

// AddRule добавляет правило в сессию.
func (c *Conductor) AddRule(ctx context.Context, sessionID uuid.UUID, rule domain.Rule) (uuid.UUID, error) {
	var id uuid.UUID
	err := c.withSession(ctx, sessionID, func(s *session) error {
		var err error
		id, err = s.sched.AddRule(ctx, rule)
		return err
	})
	return id, err
}

// RemoveRule удаляет правило из сессии.
func (c *Conductor) RemoveRule(ctx context.Context, sessionID, ruleID uuid.UUID) error {
	return c.withSession(ctx, sessionID, func(s *session) error {
		return s.sched.RemoveRule(ctx, ruleID)
	})
}

// ScheduleDeadline ставит дедлайн-правило. Пустой space берётся из параметров действия.
func (c *Conductor) ScheduleDeadline(ctx context.Context, sessionID uuid.UUID, rule domain.Rule, space string) (domain.PendingAction, error) {
	if space == "" {
		space = rule.Action.Space()
	}

	var pending domain.PendingAction
	err := c.withSession(ctx, sessionID, func(s *session) error {
		var err error
		pending, err = s.sched.ScheduleDeadline(rule, space)
		if err == nil {
			telemetry.AgendaDepth.WithLabelValues(sessionID.String()).Set(float64(s.sched.AgendaLen()))
		}
		return err
	})
	return pending, err
}

// RecordGeneration учитывает время генерации в сессии.
// Ошибка хранилища логируется планировщиком и не возвращается: оценка в памяти уже обновлена.
func (c *Conductor) RecordGeneration(ctx context.Context, sessionID uuid.UUID, space string, durationMs uint64) error {
	return c.withSession(ctx, sessionID, func(s *session) error {
		_ = s.sched.RecordGenerationTime(ctx, space, durationMs)
		telemetry.GenerationEstimate.WithLabelValues(space).Set(s.sched.EstimateDuration(space))
		return nil
	})
}

// SetTempo задаёт темп сессии.
func (c *Conductor) SetTempo(ctx context.Context, sessionID uuid.UUID, bpm float64) error {
	return c.withSession(ctx, sessionID, func(s *session) error {
		if err := s.sched.SetTempo(bpm); err != nil {
			return err
		}
		s.clock.SetTempo(bpm)
		return nil
	})
}

// Snapshot возвращает состояние планировщика сессии.
func (c *Conductor) Snapshot(ctx context.Context, sessionID uuid.UUID) (scheduler.Snapshot, error) {
	var snap scheduler.Snapshot
	err := c.withSession(ctx, sessionID, func(s *session) error {
		snap = s.sched.Snapshot()
		return nil
	})
	return snap, err
}

// GPUBusy сообщает, считается ли GPU занятым.
func (c *Conductor) GPUBusy() bool {
	return c.gpu.Busy()
}

// ApplyTuning применяет новые параметры ко всем открытым сессиям.
// Темп и оценка по умолчанию действуют только на новые сессии.
func (c *Conductor) ApplyTuning(t Tuning) error {
	if t.Margins == nil {
		t.Margins = domain.DefaultSafetyMargins()
	}
	if err := t.Margins.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.tuning = t
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
	defer cancel()

	var errs []error
	for _, s := range c.openSessions() {
		err := s.call(ctx, func(s *session) error {
			s.sched.SetBeatTolerance(t.BeatTolerance)
			return s.sched.SetMargins(t.Margins)
		})
		if err != nil && !errors.Is(err, ErrSessionClosed) {
			errs = append(errs, fmt.Errorf("session %s: %w", s.id, err))
		}
	}

	c.logger.Info("tuning applied",
		"sessions", len(c.openSessions()),
		"beat_tolerance", t.BeatTolerance,
	)
	return errors.Join(errs...)
}
