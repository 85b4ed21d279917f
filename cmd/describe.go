package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flavortown/enrich-cli/internal/model"
)

var (
	describeLimit  int
	describeDryRun bool
)

var describeEpisodesCmd = &cobra.Command{
	Use:   "describe-episodes",
	Short: "Fill in missing episode descriptions and SEO meta",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, err := initServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		episodes, err := svc.store.ListEpisodesMissingMeta(ctx, describeLimit)
		if err != nil {
			return eris.Wrap(err, "list episodes")
		}
		if len(episodes) == 0 {
			cmd.Println("no episodes are missing meta descriptions")
			return nil
		}

		var usage model.TokenUsage
		updated, failed := 0, 0
		for i := range episodes {
			ep := episodes[i]
			res := svc.episodes.Describe(ctx, &ep)
			usage.Add(res.TokensUsed)
			if !res.Success {
				failed++
				zap.L().Warn("episode description failed",
					zap.String("slug", ep.Slug), zap.Error(res.Err))
				continue
			}
			if !describeDryRun {
				if err := svc.store.UpdateEpisodeDescriptions(ctx, ep.ID, res.Description, res.MetaDescription); err != nil {
					failed++
					zap.L().Warn("episode update failed",
						zap.String("slug", ep.Slug), zap.Error(err))
					continue
				}
			}
			updated++
			cmd.Printf("%s: %s\n", ep.Slug, res.MetaDescription)
		}

		cmd.Printf("described %d episodes (%d failed), %d tokens, $%.4f\n",
			updated, failed, usage.Total,
			svc.calc.CompletionTokens(cfg.Anthropic.Model, usage.Total))
		if failed > 0 && updated == 0 {
			return eris.New("every episode description failed")
		}
		return nil
	},
}

func init() {
	describeEpisodesCmd.Flags().IntVar(&describeLimit, "limit", 10, "max episodes to describe (0 = all)")
	describeEpisodesCmd.Flags().BoolVar(&describeDryRun, "dry-run", false, "generate without writing to the store")
	rootCmd.AddCommand(describeEpisodesCmd)
}
