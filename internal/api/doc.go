// Package api содержит HTTP API состояния планировщика.
//
// Структура:
//   - handler.go         — Handler с DI (conductor, logger)
//   - routes.go          — регистрация маршрутов
//   - middleware.go      — middleware (logging, recovery)
//   - response.go        — унифицированные JSON-ответы и обработка ошибок
//   - session_handler.go — обработчики для /sessions и /gpu
//
// API только читает состояние: команды планировщику идут через vibeweaver.control.
package api
