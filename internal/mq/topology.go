package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeBroadcasts Exchange = "vibeweaver.broadcasts"
	ExchangeControl    Exchange = "vibeweaver.control"
	ExchangeActions    Exchange = "vibeweaver.actions"
	ExchangeDLQ        Exchange = "vibeweaver.dlq"
)

// Queues — имена очередей.
const (
	QueueBroadcasts Queue = "scheduler.broadcasts"
	QueueControl    Queue = "scheduler.control"
	QueueDLQControl Queue = "dlq.control"
)

// Routing keys.
const (
	// RoutingKeyAllBroadcasts — все topic'и шины, включая неизвестные.
	RoutingKeyAllBroadcasts RoutingKey = "#"
	RoutingKeyControl       RoutingKey = "control"
	RoutingKeyDLQControl    RoutingKey = "control"
)

// BroadcastTTL — события шины старше этого (мс) бесполезны: доля уже прошла.
const BroadcastTTL = 5000

// ActionsRoutingKey возвращает ключ маршрутизации действий сессии.
func ActionsRoutingKey(sessionID string) RoutingKey {
	return RoutingKey("session." + sessionID)
}

type exchangeSpec struct {
	name Exchange
	kind string
}

type queueSpec struct {
	name Queue
	args amqp.Table
}

type bindingSpec struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

var exchangeSpecs = []exchangeSpec{
	{ExchangeBroadcasts, amqp.ExchangeTopic},
	{ExchangeControl, amqp.ExchangeDirect},
	{ExchangeActions, amqp.ExchangeTopic},
	{ExchangeDLQ, amqp.ExchangeDirect},
}

var queueSpecs = []queueSpec{
	// scheduler.broadcasts — без DLQ: устаревшее событие просто отбрасывается
	{QueueBroadcasts, amqp.Table{"x-message-ttl": int32(BroadcastTTL)}},

	// scheduler.control — с DLQ: команду с ошибкой можно разобрать вручную
	{QueueControl, amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQControl),
	}},

	{QueueDLQControl, nil},
}

var bindingSpecs = []bindingSpec{
	{QueueBroadcasts, RoutingKeyAllBroadcasts, ExchangeBroadcasts},
	{QueueControl, RoutingKeyControl, ExchangeControl},
	{QueueDLQControl, RoutingKeyDLQControl, ExchangeDLQ},
}

// SetupTopology объявляет exchanges, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchangeSpecs {
			err := ch.ExchangeDeclare(
				string(ex.name), // name
				ex.kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queueSpecs {
			_, err := ch.QueueDeclare(
				string(q.name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindingSpecs {
			err := ch.QueueBind(
				string(b.queue),      // queue name
				string(b.routingKey), // routing key
				string(b.exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  vibeweaver RabbitMQ topology:

    vibeweaver.broadcasts (topic)
    └── scheduler.broadcasts [routing: #, ttl 5s]
            Consumer: conductor

    vibeweaver.control (direct)
    └── scheduler.control [routing: control]
            Consumer: conductor
            DLQ: dlq.control

    vibeweaver.actions (topic)
        routing: session.<id>, consumers: executors

    vibeweaver.dlq (direct)
    └── dlq.control [routing: control]
            Manual processing
  `
}
