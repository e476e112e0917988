package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

var errNotConfigured = errors.New("not configured")

// DependencyCheck reports whether one backing service answers.
type DependencyCheck func(ctx context.Context) error

// BreakerReporter exposes the per-provider circuit breakers.
type BreakerReporter interface {
	Methods() []payment.Method
	BreakerState(method payment.Method) (gobreaker.State, bool)
}

type namedCheck struct {
	name  string
	check DependencyCheck
}

type HealthController struct {
	checks   []namedCheck
	breakers BreakerReporter
	timeout  time.Duration
}

type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Providers map[string]string `json:"providers,omitempty"`
}

// NewHealthController builds the health endpoints. breakers may be nil.
func NewHealthController(breakers BreakerReporter) *HealthController {
	return &HealthController{breakers: breakers, timeout: 2 * time.Second}
}

// AddCheck registers a dependency that must answer for the service to be ready.
func (h *HealthController) AddCheck(name string, check DependencyCheck) {
	h.checks = append(h.checks, namedCheck{name: name, check: check})
}

// PoolCheck pings PostgreSQL. A nil pool always fails.
func PoolCheck(pool *pgxpool.Pool) DependencyCheck {
	return func(ctx context.Context) error {
		if pool == nil {
			return errNotConfigured
		}
		return pool.Ping(ctx)
	}
}

func RedisCheck(client *redis.Client) DependencyCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness fails when a dependency is down or every provider breaker is
// open. Some open breakers only degrade it: the other methods still take votes.
func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := ReadinessResponse{Status: "ready", Checks: make(map[string]string, len(h.checks))}
	code := http.StatusOK

	for _, c := range h.checks {
		if err := c.check(ctx); err != nil {
			resp.Checks[c.name] = "down"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.name] = "up"
	}

	if h.breakers != nil {
		methods := h.breakers.Methods()
		resp.Providers = make(map[string]string, len(methods))
		open := 0
		for _, m := range methods {
			state, ok := h.breakers.BreakerState(m)
			if !ok {
				continue
			}
			resp.Providers[string(m)] = state.String()
			if state == gobreaker.StateOpen {
				open++
			}
		}
		switch {
		case len(methods) > 0 && open == len(methods):
			code = http.StatusServiceUnavailable
		case open > 0 && code == http.StatusOK:
			resp.Status = "degraded"
		}
	}

	if code != http.StatusOK {
		resp.Status = "not ready"
	}
	writeJSON(w, code, resp)
}
