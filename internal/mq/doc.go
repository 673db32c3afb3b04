// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений и действий
//   - consumer.go   — потребление сообщений из очередей
//   - messages.go   — типы сообщений и payload'ы
//
// Exchanges:
//   - vibeweaver.broadcasts — события шины (beat.tick, job.state_changed, ...), topic
//   - vibeweaver.control    — команды планировщику, direct
//   - vibeweaver.actions    — выданные действия, topic (session.<id>)
//   - vibeweaver.dlq        — dead letter queue
//
// События шины приходят без конверта: routing key — topic события,
// тело — JSON. Команды и действия оборачиваются в Message.
package mq
