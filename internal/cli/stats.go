package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewStatsCmd создаёт группу команд статистики генерации.
func NewStatsCmd(storeFn StoreFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Generation time statistics",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List average generation time per space",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			store, err := storeFn(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.ListGenerationStats(ctx)
			if err != nil {
				return err
			}

			rows := make([][]string, len(stats))
			for i, s := range stats {
				rows[i] = []string{
					s.Space,
					strconv.FormatFloat(s.AvgDurationMs, 'f', 1, 64),
					strconv.FormatUint(s.SampleCount, 10),
				}
			}

			out.Print([]string{"SPACE", "AVG_MS", "SAMPLES"}, rows, stats)
			return nil
		},
	})

	return cmd
}
