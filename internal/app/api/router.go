package api

import (
	"context"
	"log/slog"
	"time"

	"whisperclient/db"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogchi "github.com/samber/slog-chi"
)

type Config struct {
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
	Token   string        `yaml:"token"`
}

type JobStore interface {
	ListJobs(ctx context.Context) ([]*db.Job, error)
	GetJob(ctx context.Context, hash string) (*db.Job, error)
}

type API struct {
	logger *slog.Logger

	cfg *Config

	jobs     JobStore
	gatherer prometheus.Gatherer
}

// NewAPI serves the job ledger read-only. jobs may be nil when no ledger is configured.
func NewAPI(cfg *Config, logger *slog.Logger, jobs JobStore, gatherer prometheus.Gatherer) *API {
	return &API{
		cfg:      cfg,
		logger:   logger,
		jobs:     jobs,
		gatherer: gatherer,
	}
}

func (api *API) NewRouter() *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(slogchi.New(api.logger))
	router.Use(api.loggerMiddleware)
	router.Use(middleware.StripSlashes)
	router.Use(middleware.Recoverer)

	if api.cfg.Timeout > 0 {
		router.Use(middleware.Timeout(api.cfg.Timeout))
	}

	router.Get("/healthz", api.healthz)

	if api.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(api.gatherer, promhttp.HandlerOpts{}))
	}

	router.Group(func(router chi.Router) {
		router.Use(api.AuthMiddleware)

		router.Get("/jobs", api.listJobs)
		router.Get("/jobs/{hash}", api.getJob)
	})

	return router
}
