package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare-scheduling/internal/access"
	"github.com/hackgods/telecare-scheduling/internal/appointment"
	"github.com/hackgods/telecare-scheduling/internal/availability"
	"github.com/hackgods/telecare-scheduling/internal/identity"
	"github.com/hackgods/telecare-scheduling/internal/metrics"
)

type RouterConfig struct {
	Availability *availability.Service
	Ledger       *appointment.Service
	Access       *access.Service
	Tokens       *identity.Tokens

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger

	// Optional; nil reports the dependency as disabled.
	PgPool *pgxpool.Pool
	Redis  *redis.Client

	// Location is the clinic clock used to read booking dates.
	Location       *time.Location
	RateLimitRPS   float64
	RateLimitBurst int
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	h := &handlers{
		availability: cfg.Availability,
		ledger:       cfg.Ledger,
		access:       cfg.Access,
		loc:          cfg.Location,
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.Metrics))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if cfg.RateLimitRPS > 0 {
			r.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))
		}
		r.Use(AuthMiddleware(cfg.Tokens))

		r.Get("/providers/{id}/availability", h.listProviderWindows)
		r.Get("/providers/{id}/slots/next", h.nextSlot)

		r.Route("/availability", func(r chi.Router) {
			r.Get("/me", h.myWindows)
			r.Post("/", h.setWindow)
			r.Put("/{id}", h.updateWindow)
			r.Delete("/{id}", h.deactivateWindow)
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.requestAppointment)
			r.Get("/", h.listAppointments)
			r.Get("/{id}", h.getAppointment)
			r.Put("/{id}/approve", h.approveAppointment)
			r.Put("/{id}/reject", h.rejectAppointment)
		})

		r.Route("/access-grants", func(r chi.Router) {
			r.Post("/grant", h.grantAccess)
			r.Post("/revoke", h.revokeAccess)
			r.Get("/check", h.checkAccess)
			r.Get("/{appointmentID}", h.accessStatus)
		})
	})

	return r
}

type handlers struct {
	availability *availability.Service
	ledger       *appointment.Service
	access       *access.Service
	loc          *time.Location
}
