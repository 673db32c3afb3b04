// Package scheduler реализует планировщик правил одной сессии.
//
// Scheduler сопоставляет события шины (Broadcast) с правилами
// и выдаёт упорядоченный список действий, а также ведёт agenda
// дедлайн-действий, которые нужно начать заранее, чтобы успеть
// к музыкальному дедлайну.
//
// Структура:
//   - index.go     — RuleIndex: правила по категориям триггеров, по убыванию приоритета
//   - agenda.go    — Agenda: min-heap дедлайн-действий по start_by_beat
//   - estimator.go — оценка времени генерации по пространствам (инкрементальное среднее)
//   - match.go     — предикаты совпадения broadcast ↔ триггер
//   - scheduler.go — Scheduler: ProcessBroadcast, CheckDeadlines, ScheduleDeadline
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    SessionID: sessionID,
//	    Store:     store,
//	    Logger:    logger,
//	})
//	if err := sched.LoadRules(ctx); err != nil {
//	    return err
//	}
//
//	// Событийный путь
//	actions := sched.ProcessBroadcast(ctx, broadcast)
//
//	// Путь по часам
//	actions = sched.CheckDeadlines(positionBeats, gpuBusy)
//
// Конкурентность:
//
// Scheduler не синхронизирован. На одну сессию — ровно один Scheduler,
// и хост обязан сериализовать вызовы (см. internal/conductor, где каждая
// сессия обслуживается одной горутиной).
package scheduler
