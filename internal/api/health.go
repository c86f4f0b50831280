package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	depOK       = "ok"
	depDown     = "down"
	depDisabled = "disabled"
)

// probe is one dependency checked by readiness. A critical probe failing makes
// the service unready; any other failure only degrades it.
type probe struct {
	name     string
	critical bool
	ping     func(ctx context.Context) error
}

type HealthHandler struct {
	probes  []probe
	env     string
	version string
}

// NewHealthHandler probes Postgres (critical) and Redis (booking lock only).
// A nil pool or client is reported as disabled.
func NewHealthHandler(pgPool *pgxpool.Pool, rdb *redis.Client, env, version string) *HealthHandler {
	h := &HealthHandler{env: env, version: version}

	pg := probe{name: "postgres", critical: true}
	if pgPool != nil {
		pg.ping = pgPool.Ping
	}
	lock := probe{name: "redis"}
	if rdb != nil {
		lock.ping = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	h.probes = []probe{pg, lock}
	return h
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Status: depOK, Version: h.version, Env: h.env})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := ReadinessResponse{
		Status:       depOK,
		Version:      h.version,
		Env:          h.env,
		Dependencies: make(map[string]string, len(h.probes)),
	}
	code := http.StatusOK

	for _, p := range h.probes {
		state := p.check(ctx)
		resp.Dependencies[p.name] = state
		if state != depDown {
			continue
		}
		if p.critical {
			resp.Status = "error"
			code = http.StatusServiceUnavailable
		} else if resp.Status == depOK {
			resp.Status = "degraded"
		}
	}

	writeJSON(w, code, resp)
}

func (p probe) check(ctx context.Context) string {
	if p.ping == nil {
		return depDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.ping(ctx); err != nil {
		return depDown
	}
	return depOK
}
