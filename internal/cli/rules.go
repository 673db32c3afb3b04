package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/spf13/cobra"
)

// StoreFunc открывает хранилище после разбора флагов.
type StoreFunc func(ctx context.Context) (Store, error)

// errDeadlineRule — дедлайн-правила живут только в памяти планировщика.
var errDeadlineRule = errors.New("deadline rules are not stored, use 'send deadline'")

// NewRulesCmd создаёт группу команд для управления правилами.
func NewRulesCmd(storeFn StoreFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage stored rules",
	}

	cmd.AddCommand(
		newRulesListCmd(storeFn, outputFn),
		newRulesShowCmd(storeFn, outputFn),
		newRulesAddCmd(storeFn, outputFn),
		newRulesRemoveCmd(storeFn, outputFn),
		newRulesEnabledCmd(storeFn, outputFn, true),
		newRulesEnabledCmd(storeFn, outputFn, false),
	)

	return cmd
}

var ruleHeaders = []string{"ID", "SESSION", "TRIGGER", "ACTION", "PRIORITY", "ENABLED", "ONE_SHOT", "FIRED", "LAST_FIRED"}

func ruleRow(r domain.Rule) []string {
	return []string{
		r.ID.String(),
		r.SessionID.String(),
		r.Trigger.String(),
		string(r.Action.Type),
		r.Priority.String(),
		strconv.FormatBool(r.Enabled()),
		strconv.FormatBool(r.OneShot),
		strconv.FormatUint(r.FiredCount, 10),
		formatTime(r.LastFiredAt),
	}
}

func newRulesListCmd(storeFn StoreFunc, outputFn func() *Output) *cobra.Command {
	var sessionID string
	var triggerType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			store, err := storeFn(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var rules []domain.Rule
			if sessionID != "" {
				id, err := uuid.Parse(sessionID)
				if err != nil {
					return fmt.Errorf("invalid session id %q: %w", sessionID, err)
				}
				rules, err = store.ListRules(ctx, id)
				if err != nil {
					return err
				}
			} else {
				rules, err = store.ListAllRules(ctx)
				if err != nil {
					return err
				}
			}

			if triggerType != "" {
				tt, err := domain.ParseTriggerType(triggerType)
				if err != nil {
					return err
				}
				filtered := rules[:0]
				for _, r := range rules {
					if r.Trigger.Type == tt {
						filtered = append(filtered, r)
					}
				}
				rules = filtered
			}

			rows := make([][]string, len(rules))
			for i, r := range rules {
				rows[i] = ruleRow(r)
			}

			out.Print(ruleHeaders, rows, rules)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Filter by session ID")
	cmd.Flags().StringVar(&triggerType, "type", "", "Filter by trigger type")

	return cmd
}

func newRulesShowCmd(storeFn StoreFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show rule details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid rule id %q: %w", args[0], err)
			}

			store, err := storeFn(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			rule, err := store.GetRule(ctx, id)
			if err != nil {
				return err
			}

			out.Print(ruleHeaders, [][]string{ruleRow(*rule)}, rule)
			return nil
		},
	}
}

func newRulesAddCmd(storeFn StoreFunc, outputFn func() *Output) *cobra.Command {
	var sessionID string
	var trigger string
	var actionType string
	var params []string
	var priority string
	var oneShot bool
	var disabled bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a rule",
		Example: `  vibeweaver rules add --session $SESSION --trigger beat:4 --action play
  vibeweaver rules add --session $SESSION --trigger marker:chorus --action sample \
      --param space=drums --param prompt=breakbeat --priority high --one-shot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			session, err := uuid.Parse(sessionID)
			if err != nil {
				return fmt.Errorf("invalid session id %q: %w", sessionID, err)
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

			rule := domain.NewRule(session, t, action).WithPriority(p)
			rule.OneShot = oneShot
			rule.Disabled = disabled

			store, err := storeFn(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.InsertRule(ctx, &rule); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Rule created: %s", rule.ID))
			out.Print(ruleHeaders, [][]string{ruleRow(rule)}, rule)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (required)")
	cmd.Flags().StringVar(&trigger, "trigger", "", "Trigger as TYPE[:ARG], e.g. beat:4 (required)")
	cmd.Flags().StringVar(&actionType, "action", "", "Action type (required)")
	cmd.Flags().StringSliceVar(&params, "param", nil, "Action params as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&priority, "priority", "normal", "Priority: critical, high, normal, low, idle")
	cmd.Flags().BoolVar(&oneShot, "one-shot", false, "Remove the rule after its first fire")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Create the rule disabled")
	cmd.MarkFlagRequired("session")
	cmd.MarkFlagRequired("trigger")
	cmd.MarkFlagRequired("action")

	return cmd
}

func newRulesRemoveCmd(storeFn StoreFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:     "remove ID",
		Aliases: []string{"rm", "delete"},
		Short:   "Remove a rule",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid rule id %q: %w", args[0], err)
			}

			store, err := storeFn(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteRule(ctx, id); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Rule %s removed", id))
			return nil
		},
	}
}

func newRulesEnabledCmd(storeFn StoreFunc, outputFn func() *Output, enabled bool) *cobra.Command {
	use, short, verb := "disable ID", "Disable a rule", "disabled"
	if enabled {
		use, short, verb = "enable ID", "Enable a rule", "enabled"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid rule id %q: %w", args[0], err)
			}

			store, err := storeFn(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SetRuleEnabled(ctx, id, enabled); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Rule %s %s", id, verb))
			return nil
		},
	}
}
