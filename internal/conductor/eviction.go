package conductor

import (
	"context"

	"github.com/robfig/cron/v3"
)

// cronParser разбирает EvictionSchedule: стандартные 5 полей и дескрипторы (@every 1m).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseEvictionSchedule проверяет расписание проверки простоя.
func ParseEvictionSchedule(expr string) error {
	_, err := cronParser.Parse(expr)
	return err
}

// EvictIdle закрывает сессии без активности дольше IdleTimeout.
// Сессия с ожидающими дедлайнами не закрывается.
// Возвращает число закрытых сессий.
func (c *Conductor) EvictIdle(ctx context.Context) int {
	if c.idleTimeout <= 0 {
		return 0
	}

	cutoff := c.now().Add(-c.idleTimeout)
	evicted := 0

	for _, s := range c.openSessions() {
		if !s.idleSince().Before(cutoff) {
			continue
		}

		var pending int
		err := s.call(ctx, func(s *session) error {
			pending = s.sched.AgendaLen()
			return nil
		})
		if err != nil || pending > 0 {
			continue
		}

		if err := c.CloseSession(s.id); err == nil {
			evicted++
			c.logger.Info("idle session evicted",
				"session_id", s.id,
				"idle_since", s.idleSince(),
			)
		}
	}

	return evicted
}
