package main

import (
	"github.com/spf13/cobra"

	"github.com/flavortown/enrich-cli/internal/workflow"
)

var (
	addName    string
	addCity    string
	addState   string
	addAddress string
	addSlug    string
	addDryRun  bool
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add and enrich a single restaurant",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, err := initServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		wf := workflow.NewAddRestaurant(svc.store, svc.searcher, svc.content, svc.status,
			svc.calc, cfg.Anthropic.Model,
			workflow.Limits{MaxCostUSD: cfg.Workflow.MaxCostUSD})

		res := wf.Execute(ctx, workflow.AddRestaurantInput{
			Name:    addName,
			City:    addCity,
			State:   addState,
			Address: addAddress,
			Slug:    addSlug,
			DryRun:  addDryRun,
		})
		return finishRun(res)
	},
}

func init() {
	addCmd.Flags().StringVar(&addName, "name", "", "restaurant name (required)")
	addCmd.Flags().StringVar(&addCity, "city", "", "city (required)")
	addCmd.Flags().StringVar(&addState, "state", "", "state or region")
	addCmd.Flags().StringVar(&addAddress, "address", "", "street address")
	addCmd.Flags().StringVar(&addSlug, "slug", "", "explicit slug (default derived from name and city)")
	addCmd.Flags().BoolVar(&addDryRun, "dry-run", false, "compute enrichment without writing to the store")
	_ = addCmd.MarkFlagRequired("name")
	_ = addCmd.MarkFlagRequired("city")
	rootCmd.AddCommand(addCmd)
}
