package main

import (
	"github.com/spf13/cobra"

	"github.com/flavortown/enrich-cli/internal/model"
	"github.com/flavortown/enrich-cli/internal/workflow"
)

var (
	sweepIDs           []string
	sweepStatus        string
	sweepCity          string
	sweepStaleDays     int
	sweepLimit         int
	sweepAll           bool
	sweepNoLimit       bool
	sweepConcurrency   int
	sweepMinConfidence float64
	sweepDryRun        bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Bulk-verify restaurant operating statuses",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, err := initServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		limit := sweepLimit
		if sweepAll || sweepNoLimit {
			limit = 0
		}
		batchSize := sweepConcurrency
		if batchSize == 0 {
			batchSize = cfg.Workflow.BatchSize
		}
		minConfidence := sweepMinConfidence
		if minConfidence == 0 {
			minConfidence = cfg.Workflow.MinConfidence
		}

		wf := workflow.NewStatusSweep(svc.store, svc.status,
			svc.calc, cfg.Anthropic.Model,
			workflow.Limits{MaxCostUSD: cfg.Workflow.SweepMaxUSD})

		res := wf.Execute(ctx, workflow.StatusSweepInput{
			IDs: sweepIDs,
			Criteria: workflow.SweepCriteria{
				Status:            model.RestaurantStatus(sweepStatus),
				City:              sweepCity,
				NotVerifiedInDays: sweepStaleDays,
			},
			Limit:         limit,
			BatchSize:     batchSize,
			MinConfidence: minConfidence,
			DryRun:        sweepDryRun,
		})
		return finishRun(res)
	},
}

func init() {
	sweepCmd.Flags().StringSliceVar(&sweepIDs, "ids", nil, "explicit restaurant IDs (skips criteria selection)")
	sweepCmd.Flags().StringVar(&sweepStatus, "status", "", "select restaurants with this status (open|closed|unknown)")
	sweepCmd.Flags().StringVar(&sweepCity, "city", "", "select restaurants in this city")
	sweepCmd.Flags().IntVar(&sweepStaleDays, "not-verified-days", 0, "select restaurants not verified in N days")
	sweepCmd.Flags().IntVar(&sweepLimit, "limit", 0, "cap how many restaurants the sweep touches (0 = no cap)")
	sweepCmd.Flags().BoolVar(&sweepAll, "all", false, "sweep everything the criteria match, ignoring --limit")
	sweepCmd.Flags().BoolVar(&sweepNoLimit, "no-limit", false, "same as --all")
	sweepCmd.Flags().IntVar(&sweepConcurrency, "concurrency", 0, "concurrent verifications (default from config)")
	sweepCmd.Flags().Float64Var(&sweepMinConfidence, "min-confidence", 0, "minimum confidence to persist a change (default from config)")
	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "compute the update list without writing")
	rootCmd.AddCommand(sweepCmd)
}
