// Package cli реализует инструмент командной строки vibeweaver.
//
// # Обзор
//
// CLI работает с хранилищем правил напрямую (SQLite или PostgreSQL)
// и отправляет команды планировщику через vibeweaver.control.
//
// # Ключевые компоненты
//
// ## Store
//
// Хранилище правил и статистики. OpenStore выбирает SQLite, если задан
// путь к файлу, иначе PostgreSQL по DSN.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr,
// поэтому вывод можно передавать дальше: vibeweaver rules list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - rules: list, show, add, remove, enable, disable
//   - stats: list
//   - simulate: прогон диапазона долей через планировщик без записи в хранилище
//   - send: session open|close, tempo, deadline, generation
//
// Каждая группа создаётся фабричной функцией (NewRulesCmd и т.д.),
// принимающей storeFn / publisherFn и outputFn — замыкания, которые
// создают зависимости после разбора PersistentFlags.
package cli
