package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/shaiso/vibeweaver/internal/scheduler"
	"github.com/spf13/cobra"
)

// maxSimulationSteps ограничивает длину прогона.
const maxSimulationSteps = 1_000_000

// ErrInvalidRange — некорректный диапазон долей.
var ErrInvalidRange = errors.New("invalid beat range")

// SimulateOptions — параметры прогона.
type SimulateOptions struct {
	SessionID uuid.UUID
	From      float64
	To        float64
	Step      float64
	TempoBPM  float64

	// Markers — маркеры по долям: событие marker_reached при достижении доли.
	Markers map[string]float64

	// Deadlines — дедлайн-правила, поставленные до начала прогона.
	Deadlines []domain.Rule

	Margins       domain.SafetyMargins
	BeatTolerance float64
}

// SimEvent — действия, выданные на одной доле.
type SimEvent struct {
	Beat    float64         `json:"beat"`
	Source  string          `json:"source"`
	Actions []domain.Action `json:"actions"`
}

// Simulate прогоняет диапазон долей через планировщик сессии,
// загруженный из хранилища. Хранилище не изменяется.
func Simulate(ctx context.Context, store scheduler.Store, opts SimulateOptions) ([]SimEvent, error) {
	if opts.Step <= 0 || opts.To < opts.From || math.IsNaN(opts.From) || math.IsInf(opts.To, 0) {
		return nil, fmt.Errorf("%w: from %g to %g step %g", ErrInvalidRange, opts.From, opts.To, opts.Step)
	}
	steps := int(math.Floor((opts.To-opts.From)/opts.Step)) + 1
	if steps > maxSimulationSteps {
		return nil, fmt.Errorf("%w: %d steps exceed %d", ErrInvalidRange, steps, maxSimulationSteps)
	}

	sched := scheduler.New(scheduler.Config{
		SessionID:     opts.SessionID,
		Store:         readOnlyStore{next: store},
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Margins:       opts.Margins,
		BeatTolerance: opts.BeatTolerance,
		TempoBPM:      opts.TempoBPM,
	})
	if err := sched.LoadRules(ctx); err != nil {
		return nil, err
	}

	for _, r := range opts.Deadlines {
		if _, err := sched.ScheduleDeadline(r, r.Action.Space()); err != nil {
			return nil, err
		}
	}

	markers := sortedMarkers(opts.Markers)
	tempo := sched.Tempo()

	var events []SimEvent
	emit := func(beat float64, source string, actions []domain.Action) {
		if len(actions) > 0 {
			events = append(events, SimEvent{Beat: beat, Source: source, Actions: actions})
		}
	}

	for i := 0; i < steps; i++ {
		beat := opts.From + float64(i)*opts.Step

		emit(beat, "beat", sched.ProcessBroadcast(ctx, domain.BeatTick(beat, tempo)))

		for len(markers) > 0 && markers[0].beat <= beat {
			m := markers[0]
			markers = markers[1:]
			emit(beat, "marker:"+m.name, sched.ProcessBroadcast(ctx, domain.MarkerReached(m.name, m.beat)))
		}

		emit(beat, "deadline", sched.CheckDeadlines(beat, false))
	}

	return events, nil
}

type marker struct {
	name string
	beat float64
}

func sortedMarkers(m map[string]float64) []marker {
	out := make([]marker, 0, len(m))
	for name, beat := range m {
		out = append(out, marker{name: name, beat: beat})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].beat != out[j].beat {
			return out[i].beat < out[j].beat
		}
		return out[i].name < out[j].name
	})
	return out
}

// parseMarker разбирает NAME@BEAT.
func parseMarker(s string) (string, float64, error) {
	name, beatStr, ok := strings.Cut(s, "@")
	if !ok || name == "" {
		return "", 0, fmt.Errorf("invalid marker %q, expected NAME@BEAT", s)
	}
	beat, err := strconv.ParseFloat(beatStr, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid marker beat %q: %w", beatStr, err)
	}
	return name, beat, nil
}

// parseDeadline разбирает BEAT:ACTION[:PRIORITY].
func parseDeadline(session uuid.UUID, s string, params []string) (domain.Rule, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return domain.Rule{}, fmt.Errorf("invalid deadline %q, expected BEAT:ACTION[:PRIORITY]", s)
	}
	beat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("invalid deadline beat %q: %w", parts[0], err)
	}
	action, err := BuildAction(parts[1], params)
	if err != nil {
		return domain.Rule{}, err
	}
	priority := domain.DefaultPriority
	if len(parts) == 3 {
		if priority, err = domain.ParsePriority(parts[2]); err != nil {
			return domain.Rule{}, err
		}
	}
	return domain.NewRule(session, domain.DeadlineTrigger(beat), action).WithPriority(priority), nil
}

// NewSimulateCmd создаёт команду simulate.
func NewSimulateCmd(storeFn StoreFunc, outputFn func() *Output) *cobra.Command {
	var sessionID string
	var from, to, step, tempo float64
	var markers []string
	var deadlines []string
	var params []string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a beat range through the session's rules",
		Long: `Loads the session's rules and generation stats from the store, replays
beat ticks from --from to --to and prints the actions each beat releases.
The store is not modified.`,
		Example: `  vibeweaver simulate --session $SESSION --to 32 --marker chorus@16 --deadline 24:sample --param space=drums`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			session, err := uuid.Parse(sessionID)
			if err != nil {
				return fmt.Errorf("invalid session id %q: %w", sessionID, err)
			}

			opts := SimulateOptions{
				SessionID: session,
				From:      from,
				To:        to,
				Step:      step,
				TempoBPM:  tempo,
				Markers:   make(map[string]float64, len(markers)),
			}
			for _, m := range markers {
				name, beat, err := parseMarker(m)
				if err != nil {
					return err
				}
				opts.Markers[name] = beat
			}
			for _, d := range deadlines {
				rule, err := parseDeadline(session, d, params)
				if err != nil {
					return err
				}
				opts.Deadlines = append(opts.Deadlines, rule)
			}

			store, err := storeFn(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			events, err := Simulate(ctx, store, opts)
			if err != nil {
				return err
			}

			var rows [][]string
			for _, e := range events {
				for _, a := range e.Actions {
					rows = append(rows, []string{formatBeat(e.Beat), e.Source, string(a.Type), string(a.Params)})
				}
			}

			out.Print([]string{"BEAT", "SOURCE", "ACTION", "PARAMS"}, rows, events)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (required)")
	cmd.Flags().Float64Var(&from, "from", 0, "First beat")
	cmd.Flags().Float64Var(&to, "to", 16, "Last beat")
	cmd.Flags().Float64Var(&step, "step", 1, "Beat step")
	cmd.Flags().Float64Var(&tempo, "tempo", domain.DefaultTempoBPM, "Tempo in BPM")
	cmd.Flags().StringSliceVar(&markers, "marker", nil, "Marker as NAME@BEAT (repeatable)")
	cmd.Flags().StringSliceVar(&deadlines, "deadline", nil, "Deadline as BEAT:ACTION[:PRIORITY] (repeatable)")
	cmd.Flags().StringSliceVar(&params, "param", nil, "Params for --deadline actions as KEY=VALUE (repeatable)")
	cmd.MarkFlagRequired("session")

	return cmd
}
