package conductor

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/shaiso/vibeweaver/internal/mq"
)

// handleBroadcast обрабатывает событие шины. Тело сообщения — сырой JSON события,
// ключ маршрутизации — topic.
func (c *Conductor) handleBroadcast(ctx context.Context, delivery *mq.Delivery) error {
	b := domain.ParseBroadcast(delivery.RoutingKey, delivery.Body)
	if b.Kind == domain.BroadcastUnknown {
		c.logger.Debug("ignoring broadcast", "topic", delivery.RoutingKey)
		return nil
	}

	c.DispatchBroadcast(ctx, b)
	return nil
}

// handleControl обрабатывает команду из scheduler.control.
func (c *Conductor) handleControl(ctx context.Context, delivery *mq.Delivery) error {
	msg := &delivery.Message

	switch msg.Type {
	case mq.MessageTypeSessionOpen:
		payload, err := mq.ParsePayload[mq.SessionPayload](msg)
		if err != nil {
			return err
		}
		err = c.OpenSession(ctx, payload.SessionID)
		if errors.Is(err, ErrSessionExists) {
			c.logger.Debug("session already open", "session_id", payload.SessionID)
			return nil
		}
		return err

	case mq.MessageTypeSessionClose:
		payload, err := mq.ParsePayload[mq.SessionPayload](msg)
		if err != nil {
			return err
		}
		err = c.CloseSession(payload.SessionID)
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err

	case mq.MessageTypeRuleAdd:
		payload, err := mq.ParsePayload[mq.RuleAddPayload](msg)
		if err != nil {
			return err
		}
		payload.Rule.SessionID = payload.SessionID
		id, err := c.AddRule(ctx, payload.SessionID, payload.Rule)
		if err != nil {
			return fmt.Errorf("add rule: %w", err)
		}
		c.logger.Info("rule added", "session_id", payload.SessionID, "rule_id", id)
		return nil

	case mq.MessageTypeRuleRemove:
		payload, err := mq.ParsePayload[mq.RuleRemovePayload](msg)
		if err != nil {
			return err
		}
		if err := c.RemoveRule(ctx, payload.SessionID, payload.RuleID); err != nil {
			return fmt.Errorf("remove rule: %w", err)
		}
		c.logger.Info("rule removed", "session_id", payload.SessionID, "rule_id", payload.RuleID)
		return nil

	case mq.MessageTypeDeadlineSchedule:
		payload, err := mq.ParsePayload[mq.DeadlineSchedulePayload](msg)
		if err != nil {
			return err
		}
		payload.Rule.SessionID = payload.SessionID
		pending, err := c.ScheduleDeadline(ctx, payload.SessionID, payload.Rule, payload.Space)
		if err != nil {
			return fmt.Errorf("schedule deadline: %w", err)
		}
		c.logger.Info("deadline scheduled",
			"session_id", payload.SessionID,
			"rule_id", pending.RuleID,
			"deadline_beat", payload.Rule.Trigger.Beat,
			"start_by_beat", pending.StartByBeat,
		)
		return nil

	case mq.MessageTypeGenerationRecord:
		payload, err := mq.ParsePayload[mq.GenerationRecordPayload](msg)
		if err != nil {
			return err
		}
		return c.RecordGeneration(ctx, payload.SessionID, payload.Space, payload.DurationMs)

	case mq.MessageTypeTempoSet:
		payload, err := mq.ParsePayload[mq.TempoSetPayload](msg)
		if err != nil {
			return err
		}
		return c.SetTempo(ctx, payload.SessionID, payload.TempoBPM)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, msg.Type)
	}
}
