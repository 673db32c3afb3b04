package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/shaiso/vibeweaver/internal/repo"
)

// DefaultTempoBPM — темп до первого BeatTick / SetTempo.
const DefaultTempoBPM = domain.DefaultTempoBPM

// Scheduler — планировщик правил одной сессии.
//
// Владеет RuleIndex, Agenda и Estimator. Не синхронизирован:
// хост обязан вызывать методы последовательно.
type Scheduler struct {
	sessionID uuid.UUID
	store     Store
	logger    *slog.Logger
	now       func() time.Time

	index     *RuleIndex
	agenda    *Agenda
	estimator *Estimator

	margins       domain.SafetyMargins
	beatTolerance float64
	tempoBPM      float64
}

// Config — конфигурация Scheduler.
type Config struct {
	SessionID uuid.UUID
	Store     Store
	Logger    *slog.Logger

	Margins           domain.SafetyMargins // коэффициенты запаса (default: domain.DefaultSafetyMargins)
	BeatTolerance     float64              // допуск дробной части доли (default: 0.1)
	DefaultEstimateMs float64              // оценка без замеров (default: 5000)
	TempoBPM          float64              // начальный темп (default: 120)

	// Now — источник времени для last_fired_at (default: time.Now).
	Now func() time.Time
}

// New создаёт Scheduler для сессии.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	margins := cfg.Margins
	if margins == nil {
		margins = domain.DefaultSafetyMargins()
	}

	tolerance := cfg.BeatTolerance
	if tolerance <= 0 {
		tolerance = DefaultBeatTolerance
	}

	tempo := cfg.TempoBPM
	if !validTempo(tempo) {
		tempo = DefaultTempoBPM
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		sessionID:     cfg.SessionID,
		store:         cfg.Store,
		logger:        logger.With("session_id", cfg.SessionID),
		now:           now,
		index:         NewRuleIndex(),
		agenda:        NewAgenda(),
		estimator:     NewEstimator(cfg.DefaultEstimateMs),
		margins:       margins.Clone(),
		beatTolerance: tolerance,
		tempoBPM:      tempo,
	}
}

// SessionID возвращает сессию планировщика.
func (s *Scheduler) SessionID() uuid.UUID {
	return s.sessionID
}

// LoadRules (пере)заполняет индекс правилами сессии из хранилища
// и подгружает сохранённую статистику генерации.
//
// Agenda не трогается: дедлайн-записи живут только в памяти.
func (s *Scheduler) LoadRules(ctx context.Context) error {
	rules, err := s.store.ListRules(ctx, s.sessionID)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	valid := rules[:0]
	for _, r := range rules {
		if err := r.Trigger.Validate(); err != nil {
			s.logger.Warn("skipping stored rule with invalid trigger",
				"rule_id", r.ID,
				"error", err,
			)
			continue
		}
		valid = append(valid, r)
	}
	// Дедлайн-правила живут только в памяти: переносим их в новый индекс
	var scheduled []domain.Rule
	for _, p := range s.agenda.Pending() {
		if r, ok := s.index.Lookup(p.RuleID); ok {
			scheduled = append(scheduled, r)
		}
	}

	s.index.Rebuild(valid)
	for _, r := range scheduled {
		if !s.index.Contains(r.ID) {
			s.index.Insert(r)
		}
	}

	stats, err := s.store.ListGenerationStats(ctx)
	if err != nil {
		s.logger.Warn("failed to load generation stats", "error", err)
	} else {
		s.estimator.Seed(stats)
	}

	s.logger.Info("rules loaded",
		"rules", s.index.Len(),
		"spaces", len(stats),
	)
	return nil
}

// AddRule сохраняет правило и добавляет его в индекс.
//
// Сначала запись в хранилище: при ошибке правило не индексируется,
// и вызывающий видит согласованное состояние.
func (s *Scheduler) AddRule(ctx context.Context, rule domain.Rule) (uuid.UUID, error) {
	if err := rule.Trigger.Validate(); err != nil {
		return uuid.Nil, err
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.SessionID == uuid.Nil {
		rule.SessionID = s.sessionID
	}
	if rule.SessionID != s.sessionID {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrSessionMismatch, rule.SessionID)
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = s.now().UTC()
	}

	if err := s.store.InsertRule(ctx, &rule); err != nil {
		return uuid.Nil, fmt.Errorf("insert rule: %w", err)
	}
	s.index.Insert(rule)

	s.logger.Debug("rule added",
		"rule_id", rule.ID,
		"trigger", rule.Trigger.String(),
		"priority", rule.Priority,
		"one_shot", rule.OneShot,
	)
	return rule.ID, nil
}

// RemoveRule удаляет правило из индекса, agenda и хранилища.
//
// Из памяти правило убирается до обращения к хранилищу, поэтому
// следующий вызов планировщика его уже не увидит даже при ошибке хранилища.
func (s *Scheduler) RemoveRule(ctx context.Context, id uuid.UUID) error {
	inMemory := s.index.Contains(id) || s.agenda.Contains(id)
	s.index.Remove(id)
	s.agenda.Remove(id)

	if err := s.store.DeleteRule(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if inMemory {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
		}
		return fmt.Errorf("delete rule: %w", err)
	}

	s.logger.Debug("rule removed", "rule_id", id)
	return nil
}

// ProcessBroadcast сопоставляет событие с правилами и возвращает действия
// в порядке приоритета.
//
// BeatTick также обновляет текущий темп. Неизвестные события игнорируются.
// One-shot правила удаляются из индекса в этом же вызове.
func (s *Scheduler) ProcessBroadcast(ctx context.Context, b domain.Broadcast) []domain.Action {
	if b.Kind == domain.BroadcastBeatTick {
		if validTempo(b.TempoBPM) {
			s.tempoBPM = b.TempoBPM
		}
	}

	category, match, ok := s.matcherFor(b)
	if !ok {
		return nil
	}

	var actions []domain.Action
	var oneShots []uuid.UUID

	now := s.now().UTC()
	rules := s.index.Get(category)
	for i := range rules {
		rule := &rules[i]
		if rule.Disabled || !match(rule.Trigger) {
			continue
		}

		actions = append(actions, rule.Action)
		rule.MarkFired(now)

		if err := s.store.UpdateRuleFired(ctx, rule.ID, now); err != nil {
			s.logger.Warn("failed to record rule fire",
				"rule_id", rule.ID,
				"error", err,
			)
		}

		if rule.OneShot {
			oneShots = append(oneShots, rule.ID)
		}
	}

	// One-shot: сразу из индекса, затем best-effort из хранилища
	for _, id := range oneShots {
		s.index.Remove(id)
		if err := s.store.DeleteRule(ctx, id); err != nil && !errors.Is(err, repo.ErrNotFound) {
			s.logger.Warn("failed to delete one-shot rule",
				"rule_id", id,
				"error", err,
			)
		}
	}

	if len(actions) > 0 {
		s.logger.Debug("broadcast matched",
			"kind", b.Kind,
			"actions", len(actions),
			"one_shots", len(oneShots),
		)
	}
	return actions
}

// CheckDeadlines выдаёт дедлайн-действия, время старта которых наступило.
//
// Ближайшая запись блокирует очередь: если GPU занят и она не Critical,
// выдача прекращается, даже если за ней есть другие просроченные записи.
func (s *Scheduler) CheckDeadlines(positionBeats float64, gpuBusy bool) []domain.Action {
	if math.IsNaN(positionBeats) || math.IsInf(positionBeats, 0) {
		s.logger.Warn("ignoring non-finite position", "position_beats", positionBeats)
		return nil
	}

	var actions []domain.Action

	for {
		next, ok := s.agenda.Peek()
		if !ok {
			break
		}
		if next.StartByBeat > positionBeats {
			break
		}
		if gpuBusy && next.Priority != domain.PriorityCritical {
			break
		}

		pending, _ := s.agenda.Pop()
		s.index.Remove(pending.RuleID)
		actions = append(actions, pending.Action)

		s.logger.Debug("deadline released",
			"rule_id", pending.RuleID,
			"start_by_beat", pending.StartByBeat,
			"position_beats", positionBeats,
			"priority", pending.Priority,
		)
	}

	return actions
}

// NextDeadline возвращает ближайшую запись agenda.
func (s *Scheduler) NextDeadline() (domain.PendingAction, bool) {
	return s.agenda.Peek()
}

// AgendaLen возвращает число ожидающих дедлайн-записей.
func (s *Scheduler) AgendaLen() int {
	return s.agenda.Len()
}

// ScheduleDeadline ставит дедлайн-правило в agenda.
//
// start_by_beat вычисляется один раз, по текущему темпу и оценке;
// последующие изменения темпа на поставленные записи не влияют.
func (s *Scheduler) ScheduleDeadline(rule domain.Rule, space string) (domain.PendingAction, error) {
	if !rule.Trigger.IsDeadline() {
		return domain.PendingAction{}, fmt.Errorf("%w: got %s", ErrNotDeadlineTrigger, rule.Trigger.Type)
	}
	deadline := rule.Trigger.Beat
	if math.IsNaN(deadline) || math.IsInf(deadline, 0) {
		return domain.PendingAction{}, fmt.Errorf("%w: %v", ErrInvalidDeadline, deadline)
	}
	if rule.Disabled {
		return domain.PendingAction{}, fmt.Errorf("%w: %s", ErrRuleDisabled, rule.ID)
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.SessionID == uuid.Nil {
		rule.SessionID = s.sessionID
	}
	if s.agenda.Contains(rule.ID) {
		return domain.PendingAction{}, fmt.Errorf("%w: %s", ErrAlreadyScheduled, rule.ID)
	}

	pending := domain.PendingAction{
		RuleID:       rule.ID,
		Action:       rule.Action,
		Priority:     rule.Priority,
		DeadlineBeat: &deadline,
		StartByBeat:  s.CalculateStartBy(deadline, space, rule.Priority),
	}
	s.agenda.Push(pending)

	// Индекс синхронизирован с agenda, чтобы перечисление активных правил его видело
	s.index.Remove(rule.ID)
	s.index.Insert(rule)

	s.logger.Debug("deadline scheduled",
		"rule_id", rule.ID,
		"space", space,
		"deadline_beat", deadline,
		"start_by_beat", pending.StartByBeat,
		"priority", rule.Priority,
	)
	return pending, nil
}

// CalculateStartBy вычисляет долю, не позже которой нужно начать работу:
//
//	start_by = deadline - estimate_ms * (tempo / 60000) * margin(priority)
func (s *Scheduler) CalculateStartBy(deadlineBeat float64, space string, priority domain.Priority) float64 {
	estimatedMs := s.estimator.Estimate(space)
	beatsPerMs := s.tempoBPM / 60_000.0
	estimatedBeats := estimatedMs * beatsPerMs
	return deadlineBeat - estimatedBeats*s.margins.Margin(priority)
}

// RecordGenerationTime учитывает наблюдаемое время генерации и сохраняет среднее.
//
// Оценка в памяти обновляется всегда; ошибка хранилища возвращается,
// но для планирования не фатальна.
func (s *Scheduler) RecordGenerationTime(ctx context.Context, space string, durationMs uint64) error {
	stats := s.estimator.Record(space, durationMs)

	if err := s.store.UpdateGenerationStats(ctx, stats); err != nil {
		s.logger.Warn("failed to persist generation stats",
			"space", space,
			"error", err,
		)
		return fmt.Errorf("update generation stats: %w", err)
	}
	return nil
}

// EstimateDuration возвращает оценку времени генерации в миллисекундах.
func (s *Scheduler) EstimateDuration(space string) float64 {
	return s.estimator.Estimate(space)
}

// SetTempo задаёт текущий темп. Неположительный или нечисловой темп отклоняется.
func (s *Scheduler) SetTempo(bpm float64) error {
	if !validTempo(bpm) {
		return fmt.Errorf("%w: %v", ErrInvalidTempo, bpm)
	}
	s.tempoBPM = bpm
	return nil
}

// Tempo возвращает текущий темп.
func (s *Scheduler) Tempo() float64 {
	return s.tempoBPM
}

// SetMargins заменяет коэффициенты запаса. Поставленные записи agenda не пересчитываются.
func (s *Scheduler) SetMargins(m domain.SafetyMargins) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.margins = m.Clone()
	return nil
}

// SetBeatTolerance задаёт допуск beat-триггеров.
func (s *Scheduler) SetBeatTolerance(tolerance float64) {
	if tolerance > 0 && tolerance < 1 {
		s.beatTolerance = tolerance
	}
}

// Rules возвращает индекс правил (только для чтения).
func (s *Scheduler) Rules() *RuleIndex {
	return s.index
}

// Snapshot — срез состояния планировщика для CLI и метрик.
type Snapshot struct {
	SessionID uuid.UUID                `json:"session_id"`
	TempoBPM  float64                  `json:"tempo_bpm"`
	Rules     []domain.Rule            `json:"rules"`
	Agenda    []domain.PendingAction   `json:"agenda"`
	Stats     []domain.GenerationStats `json:"stats"`
}

// Snapshot возвращает копию текущего состояния.
func (s *Scheduler) Snapshot() Snapshot {
	return Snapshot{
		SessionID: s.sessionID,
		TempoBPM:  s.tempoBPM,
		Rules:     s.index.All(),
		Agenda:    s.agenda.Pending(),
		Stats:     s.estimator.All(),
	}
}

func validTempo(bpm float64) bool {
	return bpm > 0 && !math.IsInf(bpm, 0) && !math.IsNaN(bpm)
}
