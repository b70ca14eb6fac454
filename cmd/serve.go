package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/ai"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/monitoring"
	"github.com/sells-group/reconcile-cli/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the operator HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		checker := monitoring.NewChecker(env.Collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		srv := &server{
			env:            env,
			lookbackHours:  cfg.Monitoring.LookbackWindowHours,
			allowedOrigins: cfg.Server.AllowedOrigins,
			persist:        saveRoster,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.routes(ctx),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// server exposes the pipeline and the provider roster over HTTP.
type server struct {
	env            *appEnv
	lookbackHours  int
	allowedOrigins []string
	persist        func(*ai.Roster) error
}

func (s *server) routes(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/documents", s.handleProcess(ctx))

	r.Route("/providers", func(r chi.Router) {
		r.Get("/", s.handleListProviders)
		r.Get("/recommendations", s.handleRecommendations)
		r.Post("/emergency", s.handleEnableEmergency)
		r.Delete("/emergency", s.handleDisableEmergency)
		r.Post("/{name}/toggle", s.handleToggle)
		r.Put("/{name}", s.handleUpdateProvider)
	})

	r.Get("/cache/stats", s.handleCacheStats)
	r.Get("/metrics", s.handleMetrics)

	return r
}

type processRequest struct {
	ID           string          `json:"id"`
	Path         string          `json:"path"`
	OriginalName string          `json:"original_name"`
	Type         string          `json:"type"`
	Form         model.FormFacts `json:"form"`
}

func (s *server) handleProcess(base context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.env.Coordinator == nil {
			writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
			return
		}
		var req processRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Path == "" {
			writeError(w, http.StatusBadRequest, "path is required")
			return
		}

		// Processing continues if the client disconnects.
		ctx := context.WithoutCancel(base)
		out, err := s.env.Coordinator.Process(ctx, pipeline.Document{
			ID:           req.ID,
			Path:         req.Path,
			OriginalName: req.OriginalName,
			Type:         model.ParseDocumentType(req.Type),
			Form:         req.Form,
		})
		if err != nil {
			zap.L().Warn("document processing failed",
				zap.String("path", req.Path),
				zap.Error(err),
			)
			writeJSONResponse(w, http.StatusUnprocessableEntity, out)
			return
		}
		writeJSONResponse(w, http.StatusOK, out)
	}
}

func (s *server) handleListProviders(w http.ResponseWriter, _ *http.Request) {
	primary, emergency := s.env.Roster.Emergency()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"providers":         s.env.Roster.Snapshot(),
		"comparison":        s.env.Roster.Metrics(),
		"emergency_mode":    emergency,
		"emergency_primary": primary,
	})
}

func (s *server) handleRecommendations(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"recommendations": s.env.Roster.Recommendations(),
	})
}

func (s *server) handleToggle(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	enabled, err := s.env.Roster.Toggle(name)
	if err != nil {
		writeRosterError(w, err)
		return
	}
	s.save()
	writeJSONResponse(w, http.StatusOK, map[string]any{"name": name, "enabled": enabled})
}

func (s *server) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var patch ai.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.env.Roster.UpdateConfig(name, patch); err != nil {
		writeRosterError(w, err)
		return
	}
	s.save()
	p, _ := s.env.Roster.Get(name)
	writeJSONResponse(w, http.StatusOK, p)
}

func (s *server) handleEnableEmergency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Primary string `json:"primary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Primary == "" {
		writeError(w, http.StatusBadRequest, "primary is required")
		return
	}
	if err := s.env.Roster.EnableEmergencyMode(req.Primary); err != nil {
		writeRosterError(w, err)
		return
	}
	s.save()
	writeJSONResponse(w, http.StatusOK, map[string]any{"emergency_mode": true, "primary": req.Primary})
}

func (s *server) handleDisableEmergency(w http.ResponseWriter, _ *http.Request) {
	s.env.Roster.DisableEmergencyMode()
	s.save()
	writeJSONResponse(w, http.StatusOK, map[string]any{"emergency_mode": false})
}

func (s *server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.env.Cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache not configured")
		return
	}
	stats, err := s.env.Cache.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, stats)
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.env.Collector == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics not configured")
		return
	}
	hours := s.lookbackHours
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}
	snap, err := s.env.Collector.Collect(r.Context(), hours)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, snap)
}

func (s *server) save() {
	if s.persist == nil {
		return
	}
	if err := s.persist(s.env.Roster); err != nil {
		zap.L().Error("persist roster failed", zap.Error(err))
	}
}

func writeRosterError(w http.ResponseWriter, err error) {
	if errors.Is(err, ai.ErrUnknownProvider) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONResponse(w, status, map[string]string{"error": msg})
}

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
