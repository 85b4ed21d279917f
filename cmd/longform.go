package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flavortown/enrich-cli/internal/enrich"
)

var (
	longformSlug     string
	longformCitySlug string
	longformWrite    bool
)

var longformCmd = &cobra.Command{
	Use:   "longform",
	Short: "Generate long-form editorial copy for a restaurant or city page",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if (longformSlug == "") == (longformCitySlug == "") {
			return eris.New("exactly one of --slug or --city-slug is required")
		}

		svc, err := initServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		var res enrich.LongformResult
		switch {
		case longformSlug != "":
			r, err := svc.store.GetRestaurantBySlug(ctx, longformSlug)
			if err != nil {
				return eris.Wrap(err, "load restaurant")
			}
			if r == nil {
				return eris.Errorf("restaurant %q not found", longformSlug)
			}
			res = svc.longform.Generate(ctx, r)
		default:
			c, err := svc.store.GetCityBySlug(ctx, longformCitySlug)
			if err != nil {
				return eris.Wrap(err, "load city")
			}
			if c == nil {
				return eris.Errorf("city %q not found", longformCitySlug)
			}
			res = svc.longform.GenerateCity(ctx, c)
			if res.Success && longformWrite {
				if err := svc.store.UpdateCityDescription(ctx, c.ID, res.Body); err != nil {
					return eris.Wrap(err, "persist city description")
				}
			}
		}

		if !res.Success {
			return eris.Wrap(res.Err, "longform generation")
		}

		zap.L().Info("longform generated",
			zap.Bool("local_model", res.IsLocal),
			zap.Int("tokens", res.TokensUsed.Total))

		cmd.Printf("# %s\n\n%s\n", res.Title, res.Body)
		return nil
	},
}

func init() {
	longformCmd.Flags().StringVar(&longformSlug, "slug", "", "restaurant slug")
	longformCmd.Flags().StringVar(&longformCitySlug, "city-slug", "", "city slug")
	longformCmd.Flags().BoolVar(&longformWrite, "write", false, "persist generated city copy to the store")
	rootCmd.AddCommand(longformCmd)
}
