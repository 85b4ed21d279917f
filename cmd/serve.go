package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flavortown/enrich-cli/internal/workflow"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the enrichment webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		svc, err := initServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(ctx, svc),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the webhook API. The enrich webhook acknowledges with
// 202 and runs the workflow in the background against the server's
// lifetime context, not the request's.
func buildRouter(ctx context.Context, svc *services) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/webhook/enrich", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Name    string `json:"name"`
			City    string `json:"city"`
			State   string `json:"state"`
			Address string `json:"address"`
			DryRun  bool   `json:"dry_run"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.Name == "" || body.City == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and city are required"})
			return
		}

		wf := workflow.NewAddRestaurant(svc.store, svc.searcher, svc.content, svc.status,
			svc.calc, cfg.Anthropic.Model,
			workflow.Limits{MaxCostUSD: cfg.Workflow.MaxCostUSD})
		input := workflow.AddRestaurantInput{
			Name:    body.Name,
			City:    body.City,
			State:   body.State,
			Address: body.Address,
			DryRun:  body.DryRun,
		}

		go func() {
			res := wf.Execute(ctx, input)
			zap.L().Info("webhook enrichment finished",
				zap.String("restaurant", body.Name),
				zap.String("status", string(res.Status)),
				zap.Float64("cost_usd", res.TotalCost.EstimatedUSD))
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":     "accepted",
			"restaurant": body.Name,
		})
	})

	r.Get("/restaurants/{slug}/status", func(w http.ResponseWriter, req *http.Request) {
		slug := chi.URLParam(req, "slug")
		rec, err := svc.store.GetRestaurantBySlug(req.Context(), slug)
		if err != nil {
			zap.L().Error("status lookup failed", zap.String("slug", slug), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
			return
		}
		if rec == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"slug":             rec.Slug,
			"status":           rec.Status,
			"last_verified_at": rec.LastVerifiedAt,
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
