package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/vibeweaver/internal/domain"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.publish(ctx, exchange, routingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
}

func (p *Publisher) publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, pub amqp.Publishing) error {
	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			pub,
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", pub.MessageId,
			"type", pub.Type,
		)
		return nil
	})
}

// PublishCommand отправляет команду планировщику.
func (p *Publisher) PublishCommand(ctx context.Context, msgType MessageType, payload any) error {
	return p.Publish(ctx, ExchangeControl, RoutingKeyControl, NewMessage(msgType, payload))
}

// PublishActions публикует выданные действия сессии.
// Потребители: исполнители действий, подписанные на session.<id>.
func (p *Publisher) PublishActions(ctx context.Context, sessionID uuid.UUID, source string, positionBeats float64, actions []domain.Action) error {
	if len(actions) == 0 {
		return nil
	}
	msg := NewMessage(MessageTypeActionsDispatched, ActionsPayload{
		SessionID:     sessionID,
		Source:        source,
		PositionBeats: positionBeats,
		Actions:       actions,
	})
	return p.Publish(ctx, ExchangeActions, ActionsRoutingKey(sessionID.String()), msg)
}

// PublishBroadcast публикует событие шины как есть: topic — routing key, тело — JSON.
// Нужен для отладки и воспроизведения записанных сессий.
func (p *Publisher) PublishBroadcast(ctx context.Context, topic string, body []byte) error {
	return p.publish(ctx, ExchangeBroadcasts, RoutingKey(topic), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    uuid.New().String(),
		Body:         body,
	})
}
