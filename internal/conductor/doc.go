// Package conductor — хост планировщиков сессий.
//
// Conductor отвечает за:
//   - Открытие и закрытие сессий (по одному scheduler.Scheduler на сессию)
//   - Раздачу событий шины всем открытым сессиям
//   - Периодическую проверку дедлайнов по часам сессии
//   - Отслеживание занятости GPU по событиям job
//   - Обработку команд из vibeweaver.control
//   - Публикацию выданных действий
//   - Закрытие простаивающих сессий по cron-расписанию
//
// Каждая сессия обслуживается своей горутиной: все вызовы Scheduler
// идут через её inbox, поэтому сам Scheduler не синхронизирован.
package conductor
