package main

import (
	"github.com/spf13/cobra"

	"github.com/flavortown/enrich-cli/internal/workflow"
)

var (
	refreshSlug    string
	refreshContent bool
	refreshStatus  bool
	refreshDryRun  bool
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-enrich an existing restaurant",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, err := initServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		wf := workflow.NewRefreshRestaurant(svc.store, svc.content, svc.status,
			svc.calc, cfg.Anthropic.Model,
			workflow.Limits{MaxCostUSD: cfg.Workflow.MaxCostUSD})

		res := wf.Execute(ctx, workflow.RefreshRestaurantInput{
			Slug: refreshSlug,
			Scope: workflow.RefreshScope{
				Content: refreshContent,
				Status:  refreshStatus,
			},
			DryRun: refreshDryRun,
		})
		return finishRun(res)
	},
}

func init() {
	refreshCmd.Flags().StringVar(&refreshSlug, "slug", "", "restaurant slug (required)")
	refreshCmd.Flags().BoolVar(&refreshContent, "content", false, "refresh description, cuisines and price tier")
	refreshCmd.Flags().BoolVar(&refreshStatus, "status", false, "re-verify operating status")
	refreshCmd.Flags().BoolVar(&refreshDryRun, "dry-run", false, "compute refresh without writing to the store")
	_ = refreshCmd.MarkFlagRequired("slug")
	rootCmd.AddCommand(refreshCmd)
}
