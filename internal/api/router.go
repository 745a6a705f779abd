package api

import (
	"time"

	"github.com/cassiomorais/eventrelay/internal/domain/outbox"
	"github.com/cassiomorais/eventrelay/internal/infrastructure/config"
	"github.com/cassiomorais/eventrelay/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/eventrelay/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Store       outbox.Store
	Retention   time.Duration
	Metrics     *observability.Metrics
	CORSConfig  config.CORSConfig
}

// NewRouter builds the operational HTTP surface: health probes, Prometheus
// metrics and the out-of-band admin entry points.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	outboxH := NewOutboxController(deps.Store, deps.Retention)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/admin/outbox", func(r chi.Router) {
		r.Post("/purge", outboxH.Purge)
		r.Post("/failed/reset", outboxH.ResetFailed)
		r.Get("/stats", outboxH.Stats)
		r.Get("/events", outboxH.ListEvents)
	})

	return r
}
