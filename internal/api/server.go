package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/deploytrack/internal/api/handler"
	mw "github.com/edvin/deploytrack/internal/api/middleware"
	"github.com/edvin/deploytrack/internal/config"
	"github.com/edvin/deploytrack/internal/core"
	"github.com/edvin/deploytrack/internal/instancesync"
)

type Server struct {
	router         chi.Router
	logger         zerolog.Logger
	services       *core.Services
	orchestrator   *instancesync.Orchestrator
	pool           *pgxpool.Pool
	temporalClient temporalclient.Client
	cfg            *config.Config
}

func NewServer(logger zerolog.Logger, pool *pgxpool.Pool, temporalClient temporalclient.Client, cfg *config.Config) *Server {
	services := core.NewServices(pool, temporalClient, cfg.SyncCronSchedule)

	deps := instancesync.Deps{
		Instances: services.Instance,
		Summaries: services.DeploymentSummary,
		Mappings:  services.InfraMapping,
		Logger:    logger,
	}
	// The intake path only derives fingerprints and enqueues; it never
	// reaches a backend, so the factory carries no provider clients here.
	factory := instancesync.NewFactory(deps, instancesync.Providers{})
	orchestrator := instancesync.NewOrchestrator(
		deps, factory, services.Events, services.Lock,
		services.SyncStatus, services.PerpetualTask, cfg.SyncFailureGrace,
	)

	s := &Server{
		router:         chi.NewRouter(),
		logger:         logger,
		services:       services,
		orchestrator:   orchestrator,
		pool:           pool,
		temporalClient: temporalClient,
		cfg:            cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Infra mappings
		infraMapping := handler.NewInfraMapping(
			s.services.InfraMapping, s.services.Instance,
			s.services.SyncStatus, s.services.PerpetualTask,
		)
		r.Get("/apps/{appID}/infra-mappings", infraMapping.ListByApp)
		r.Post("/infra-mappings", infraMapping.Create)
		r.Get("/infra-mappings/{id}", infraMapping.Get)
		r.Delete("/infra-mappings/{id}", infraMapping.Delete)

		// Instances
		instance := handler.NewInstance(s.services.Instance)
		r.Get("/infra-mappings/{id}/instances", instance.List)

		// Deployments
		deployment := handler.NewDeployment(s.orchestrator, s.services.DeploymentSummary)
		r.Post("/deployments/phase-completions", deployment.PhaseCompleted)
		r.Get("/infra-mappings/{id}/last-deployment", deployment.LastSummary)

		// Sync status and manual sync
		sync := handler.NewSync(s.services.SyncStatus, s.services.InfraMapping, s.temporalClient)
		r.Get("/infra-mappings/{id}/sync-status", sync.Status)
		r.Get("/apps/{appID}/sync-statuses", sync.ListByApp)
		r.Post("/infra-mappings/{id}/sync", sync.Trigger)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.pool.Ping(ctx); err != nil {
		checks["db"] = err.Error()
		healthy = false
	} else {
		checks["db"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
