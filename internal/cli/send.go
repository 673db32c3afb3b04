package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/shaiso/vibeweaver/internal/mq"
	"github.com/spf13/cobra"
)

// CommandPublisher отправляет команды в vibeweaver.control и события в шину.
type CommandPublisher interface {
	PublishCommand(ctx context.Context, msgType mq.MessageType, payload any) error
	PublishBroadcast(ctx context.Context, topic string, body []byte) error
}

// PublisherFunc открывает publisher; release освобождает соединение.
type PublisherFunc func(ctx context.Context) (pub CommandPublisher, release func(), err error)

// NewSendCmd создаёт группу команд, отправляемых работающему планировщику.
func NewSendCmd(publisherFn PublisherFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send commands to the running scheduler",
	}

	session := &cobra.Command{
		Use:   "session",
		Short: "Open or close a session",
	}
	session.AddCommand(
		newSendSessionCmd(publisherFn, outputFn, "open", mq.MessageTypeSessionOpen),
		newSendSessionCmd(publisherFn, outputFn, "close", mq.MessageTypeSessionClose),
	)

	cmd.AddCommand(
		session,
		newSendTempoCmd(publisherFn, outputFn),
		newSendDeadlineCmd(publisherFn, outputFn),
		newSendGenerationCmd(publisherFn, outputFn),
		newSendRuleCmd(publisherFn, outputFn),
		newSendBroadcastCmd(publisherFn, outputFn),
	)

	return cmd
}

// publish отправляет одну команду и закрывает соединение.
func publish(ctx context.Context, publisherFn PublisherFunc, out *Output, msgType mq.MessageType, payload any) error {
	pub, release, err := publisherFn(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := pub.PublishCommand(ctx, msgType, payload); err != nil {
		return err
	}

	out.Success(fmt.Sprintf("Sent %s", msgType))
	return nil
}

func newSendBroadcastCmd(publisherFn PublisherFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "broadcast TOPIC [JSON]",
		Short: "Publish a raw bus event, e.g. beat.tick '{\"beat\": 4}'",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := []byte("{}")
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("invalid JSON body %q", args[1])
				}
				body = []byte(args[1])
			}

			ctx := cmd.Context()
			pub, release, err := publisherFn(ctx)
			if err != nil {
				return err
			}
			defer release()

			if err := pub.PublishBroadcast(ctx, args[0], body); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Published %s", args[0]))
			return nil
		},
	}
}

func parseSessionID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session id %q: %w", s, err)
	}
	return id, nil
}

func newSendSessionCmd(publisherFn PublisherFunc, outputFn func() *Output, verb string, msgType mq.MessageType) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " SESSION_ID",
		Short: verb + " a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			return publish(cmd.Context(), publisherFn, outputFn(), msgType, mq.SessionPayload{SessionID: id})
		},
	}
}

func newSendTempoCmd(publisherFn PublisherFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "tempo SESSION_ID BPM",
		Short: "Set session tempo",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			bpm, err := strconv.ParseFloat(args[1], 64)
			if err != nil || bpm <= 0 {
				return fmt.Errorf("invalid tempo %q", args[1])
			}
			return publish(cmd.Context(), publisherFn, outputFn(), mq.MessageTypeTempoSet,
				mq.TempoSetPayload{SessionID: id, TempoBPM: bpm})
		},
	}
}

func newSendDeadlineCmd(publisherFn PublisherFunc, outputFn func() *Output) *cobra.Command {
	var beat float64
	var actionType string
	var params []string
	var priority string
	var space string

	cmd := &cobra.Command{
		Use:   "deadline SESSION_ID",
		Short: "Schedule a deadline rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			action, err := BuildAction(actionType, params)
			if err != nil {
				return err
			}
			p, err := domain.ParsePriority(priority)
			if err != nil {
				return err
			}

			rule := domain.NewRule(id, domain.DeadlineTrigger(beat), action).WithPriority(p)
			return publish(cmd.Context(), publisherFn, outputFn(), mq.MessageTypeDeadlineSchedule,
				mq.DeadlineSchedulePayload{SessionID: id, Rule: rule, Space: space})
		},
	}

	cmd.Flags().Float64Var(&beat, "beat", 0, "Beat the result must be ready by (required)")
	cmd.Flags().StringVar(&actionType, "action", "", "Action type (required)")
	cmd.Flags().StringSliceVar(&params, "param", nil, "Action params as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&priority, "priority", "normal", "Priority")
	cmd.Flags().StringVar(&space, "space", "", "Generation space for the estimate (default: action's space param)")
	cmd.MarkFlagRequired("beat")
	cmd.MarkFlagRequired("action")

	return cmd
}

func newSendGenerationCmd(publisherFn PublisherFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "generation SESSION_ID SPACE DURATION_MS",
		Short: "Record an observed generation time",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			ms, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", args[2], err)
			}
			return publish(cmd.Context(), publisherFn, outputFn(), mq.MessageTypeGenerationRecord,
				mq.GenerationRecordPayload{SessionID: id, Space: args[1], DurationMs: ms})
		},
	}
}

func newSendRuleCmd(publisherFn PublisherFunc, outputFn func() *Output) *cobra.Command {
	var trigger string
	var actionType string
	var params []string
	var priority string
	var oneShot bool

	add := &cobra.Command{
		Use:   "add SESSION_ID",
		Short: "Add a rule to an open session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			t, err := ParseTrigger(trigger)
			if err != nil {
				return err
			}
			if t.IsDeadline() {
				return errDeadlineRule
			}
			action, err := BuildAction(actionType, params)
			if err != nil {
				return err
			}
			p, err := domain.ParsePriority(priority)
			if err != nil {
				return err
			}

			rule := domain.NewRule(id, t, action).WithPriority(p)
			rule.OneShot = oneShot
			return publish(cmd.Context(), publisherFn, outputFn(), mq.MessageTypeRuleAdd,
				mq.RuleAddPayload{SessionID: id, Rule: rule})
		},
	}
	add.Flags().StringVar(&trigger, "trigger", "", "Trigger as TYPE[:ARG] (required)")
	add.Flags().StringVar(&actionType, "action", "", "Action type (required)")
	add.Flags().StringSliceVar(&params, "param", nil, "Action params as KEY=VALUE (repeatable)")
	add.Flags().StringVar(&priority, "priority", "normal", "Priority")
	add.Flags().BoolVar(&oneShot, "one-shot", false, "Remove the rule after its first fire")
	add.MarkFlagRequired("trigger")
	add.MarkFlagRequired("action")

	remove := &cobra.Command{
		Use:   "remove SESSION_ID RULE_ID",
		Short: "Remove a rule from an open session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			ruleID, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid rule id %q: %w", args[1], err)
			}
			return publish(cmd.Context(), publisherFn, outputFn(), mq.MessageTypeRuleRemove,
				mq.RuleRemovePayload{SessionID: id, RuleID: ruleID})
		},
	}

	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Add or remove a rule in a running session",
	}
	cmd.AddCommand(add, remove)
	return cmd
}
