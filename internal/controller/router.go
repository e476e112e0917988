package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/awards/internal/domain/catalog"
	"github.com/cassiomorais/awards/internal/infrastructure/config"
	"github.com/cassiomorais/awards/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/awards/internal/middleware"
	"github.com/cassiomorais/awards/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Settlement  *service.SettlementService
	Ledger      *service.Ledger
	Votes       *service.VoteStore
	Reconciler  *service.Reconciler
	Authz       *service.AuthzService
	Providers   service.ProviderRegistry
	// Breakers feeds provider breaker states into readiness; may be nil.
	Breakers    BreakerReporter
	Users       customMW.RoleLookup
	Idempotency customMW.IdempotencyStore
	Metrics     *observability.Metrics
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
	Server   config.ServerConfig
	Auth     config.AuthConfig
	// IdempotencyTTL is how long a stored response is replayed.
	IdempotencyTTL time.Duration
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing("awards-api"))
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Idempotency-Replayed"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Breakers)
	healthH.AddCheck("database", PoolCheck(deps.Pool))
	if deps.RedisClient != nil {
		healthH.AddCheck("redis", RedisCheck(deps.RedisClient))
	}
	voteH := NewVoteController(deps.Settlement, deps.Votes, deps.Authz)
	paymentH := NewPaymentController(deps.Settlement, deps.Ledger, deps.Authz)
	webhookH := NewWebhookController(deps.Settlement, deps.Providers)
	boardH := NewLeaderboardController(deps.Votes)
	adminH := NewAdminController(deps.Ledger, deps.Settlement, deps.Reconciler)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", metricsHandler(deps.Gatherer))

	r.Route("/api/v1", func(r chi.Router) {
		// Public projections and provider callbacks.
		r.Get("/events/{id}/leaderboard", boardH.Leaderboard)
		r.Get("/nominees/{id}/votes", boardH.NomineeVotes)
		r.With(customMW.RateLimit(deps.Server.RateLimit.Webhooks)).Post("/webhooks/{method}", webhookH.Handle)

		r.Group(func(r chi.Router) {
			r.Use(customMW.RequireAuth(deps.Auth.JWTSecret))

			r.With(
				customMW.RateLimitByUser(deps.Server.RateLimit.Votes),
				customMW.Idempotency(deps.Idempotency, deps.IdempotencyTTL),
			).Post("/votes", voteH.Create)
			r.Get("/voters/{id}/votes", voteH.History)

			r.Get("/payments/{id}", paymentH.Get)
			r.Get("/payments/{id}/events", paymentH.Events)
			r.Post("/payments/{id}/retry", paymentH.Retry)
			r.Post("/payments/{id}/verify", paymentH.Verify)

			r.Route("/admin", func(r chi.Router) {
				r.Use(customMW.RequireRole(deps.Users, catalog.RoleAdmin))
				r.Get("/anomalies", adminH.Anomalies)
				r.Get("/payments/pending", adminH.Pending)
				r.Post("/payments/{reference}/verify", adminH.Verify)
				r.Post("/reconcile", adminH.Reconcile)
			})
		})
	})

	return r
}

func metricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
