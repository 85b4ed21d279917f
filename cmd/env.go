package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flavortown/enrich-cli/internal/cost"
	"github.com/flavortown/enrich-cli/internal/enrich"
	"github.com/flavortown/enrich-cli/internal/model"
	"github.com/flavortown/enrich-cli/internal/search"
	"github.com/flavortown/enrich-cli/internal/store"
	"github.com/flavortown/enrich-cli/internal/synthesis"
	"github.com/flavortown/enrich-cli/pkg/llm"
	"github.com/flavortown/enrich-cli/pkg/places"
	"github.com/flavortown/enrich-cli/pkg/tavily"
)

// services bundles the wired clients and domain services the workflow
// commands share.
type services struct {
	store    store.Store
	searcher *search.Client
	synth    *synthesis.Synthesizer
	calc     *cost.Calculator
	content  *enrich.ContentService
	status   *enrich.StatusService
	episodes *enrich.EpisodeService
	longform *enrich.LongformService
}

func (s *services) Close() {
	if err := s.store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

// initStore opens the configured database backend and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// loadCalculator builds the cost calculator, preferring the configured
// rates file over built-in rates.
func loadCalculator() *cost.Calculator {
	rates := cost.DefaultRates()
	if cfg.Pricing.RatesFile != "" {
		loaded, err := cost.LoadRates(cfg.Pricing.RatesFile)
		if err != nil {
			zap.L().Warn("rates file unreadable, using built-in rates",
				zap.String("path", cfg.Pricing.RatesFile),
				zap.Error(err))
		} else {
			rates = loaded
		}
	}
	return cost.NewCalculator(rates)
}

// initServices validates config for workflow mode and wires the full
// enrichment stack.
func initServices(ctx context.Context) (*services, error) {
	if err := cfg.Validate("workflow"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	searcher := search.NewClient(tavily.NewClient(cfg.Tavily.Key), st, nil)
	searcher.SetDefaults(cfg.Tavily.SearchDepth, cfg.Tavily.MaxResults)

	var synthOpts []synthesis.Option
	if cfg.Local.Enabled {
		synthOpts = append(synthOpts,
			synthesis.WithLocal(llm.NewLocal(cfg.Local.Model, llm.WithLocalBaseURL(cfg.Local.BaseURL))))
	}
	synth := synthesis.New(llm.NewAnthropic(cfg.Anthropic.Key), cfg.Anthropic.Model, synthOpts...)

	placesClient := places.NewClient(cfg.Places.Key)

	return &services{
		store:    st,
		searcher: searcher,
		synth:    synth,
		calc:     loadCalculator(),
		content:  enrich.NewContentService(searcher, synth),
		status:   enrich.NewStatusService(placesClient, searcher, synth),
		episodes: enrich.NewEpisodeService(searcher, synth),
		longform: enrich.NewLongformService(searcher, synth),
	}, nil
}

// finishRun prints the result envelope and maps failed runs to a non-zero
// exit.
func finishRun(res *model.WorkflowResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return eris.Wrap(err, "encode result")
	}

	zap.L().Info("workflow finished",
		zap.String("workflow", res.Name),
		zap.String("id", res.WorkflowID),
		zap.String("status", string(res.Status)),
		zap.Int("steps", len(res.Steps)),
		zap.Int("tokens", res.TotalCost.Tokens),
		zap.Float64("cost_usd", res.TotalCost.EstimatedUSD),
		zap.Duration("duration", res.Duration))

	if !res.Success {
		code := res.FirstErrorCode()
		if code == "" {
			code = string(res.Status)
		}
		return eris.Errorf("workflow %s did not complete: %s", res.Name, code)
	}
	return nil
}
