package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/pim-core/internal/model"
	"github.com/sells-group/pim-core/internal/store"
)

var (
	runsStatus   string
	runsPipeline string
	runsLimit    int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect and manage pipeline run records",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.repo.ListRuns(ctx, store.RunFilter{
			Status:     model.RunStatus(runsStatus),
			PipelineID: runsPipeline,
			Limit:      runsLimit,
		})
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no runs")
			return nil
		}

		for _, r := range runs {
			completed := "-"
			if r.CompletedAt != nil {
				completed = r.CompletedAt.Format(time.RFC3339)
			}
			fmt.Printf("%s  %-9s  pipeline=%s  trigger=%-8s  started=%s  completed=%s  p/s/f=%d/%d/%d  cost=$%.4f\n",
				r.ID, r.Status, r.PipelineID, r.TriggeredBy,
				r.StartedAt.Format(time.RFC3339), completed,
				r.Processed, r.Skipped, r.Failed, r.CostUSD)
			if r.Error != "" {
				fmt.Printf("    error: %s\n", r.Error)
			}
		}
		return nil
	},
}

var runsCancelCmd = &cobra.Command{
	Use:   "cancel RUN_ID",
	Short: "Cancel a running pipeline run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.engine.Cancel(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("run %s cancelled\n", args[0])
		return nil
	},
}

func init() {
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status")
	runsListCmd.Flags().StringVar(&runsPipeline, "pipeline", "", "filter by pipeline id")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to show")
	runsCmd.AddCommand(runsListCmd, runsCancelCmd)
	rootCmd.AddCommand(runsCmd)
}
