package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pim-core/internal/model"
	"github.com/sells-group/pim-core/internal/review"
	"github.com/sells-group/pim-core/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		resolver := review.NewResolver(a.repo)

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/api/approvals", func(w http.ResponseWriter, req *http.Request) {
			pending, err := resolver.GetPendingApprovals(req.Context(), req.URL.Query().Get("entity_type"))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, pending)
		})

		r.Get("/api/approvals/count", func(w http.ResponseWriter, req *http.Request) {
			n, err := resolver.CountPendingApprovals(req.Context(), req.URL.Query().Get("entity_type"))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]int{"count": n})
		})

		r.Post("/api/approvals/bulk", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Pairs []model.ValuePair `json:"pairs"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil || len(body.Pairs) == 0 {
				http.Error(w, `{"error":"pairs is required"}`, http.StatusBadRequest)
				return
			}
			res := a.values.BulkApprove(req.Context(), body.Pairs)
			writeJSON(w, http.StatusOK, map[string]int{
				"approved": res.Approved,
				"failed":   res.Failed,
			})
		})

		r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			limit, _ := strconv.Atoi(q.Get("limit"))
			runs, err := a.repo.ListRuns(req.Context(), store.RunFilter{
				Status:     model.RunStatus(q.Get("status")),
				PipelineID: q.Get("pipeline_id"),
				Limit:      limit,
			})
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Post("/api/runs", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Pipeline  string   `json:"pipeline"`
				EntityIDs []string `json:"entity_ids"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Pipeline == "" {
				http.Error(w, `{"error":"pipeline is required"}`, http.StatusBadRequest)
				return
			}

			p, err := a.repo.GetPipelineByName(req.Context(), body.Pipeline)
			if err != nil {
				writeError(w, err)
				return
			}
			ids := body.EntityIDs
			if len(ids) == 0 {
				entities, err := a.repo.ListEntities(req.Context(), p.EntityType)
				if err != nil {
					writeError(w, err)
					return
				}
				for _, e := range entities {
					ids = append(ids, e.ID)
				}
			}

			// Run asynchronously; progress is visible through /api/runs.
			go func() {
				run, stats, err := a.engine.ExecuteBatch(ctx, p, ids, model.TriggeredByUser)
				if err != nil {
					zap.L().Error("api batch failed", zap.String("pipeline", p.Name), zap.Error(err))
					return
				}
				zap.L().Info("api batch complete",
					zap.String("pipeline", p.Name),
					zap.String("run", run.ID),
					zap.Int("processed", stats.Processed),
					zap.Int("skipped", stats.Skipped),
					zap.Int("failed", stats.Failed),
				)
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":   "accepted",
				"pipeline": p.Name,
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if model.IsNotFound(err) {
		status = http.StatusNotFound
	} else if model.IsValidation(err) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
