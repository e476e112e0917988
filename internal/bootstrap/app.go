package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/cassiomorais/awards/internal/infrastructure/config"
	"github.com/cassiomorais/awards/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/awards/internal/infrastructure/redis"
	"github.com/cassiomorais/awards/internal/providers"
	"github.com/cassiomorais/awards/internal/repository/postgres"
	"github.com/cassiomorais/awards/internal/service"
	"github.com/cassiomorais/awards/pkg/retry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App holds the connections and services shared by every binary.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics

	TxManager   *postgres.TxManager
	Payments    *postgres.PaymentRepository
	Votes       *postgres.VoteRepository
	Catalog     *postgres.CatalogRepository
	Outbox      *postgres.OutboxRepository
	Idempotency *postgres.IdempotencyRepository

	Providers *providers.Factory
	// Sandbox holds the in-process providers when providers.sandbox is on.
	Sandbox map[payment.Method]*providers.MockProvider
	Locker  *infraRedis.Locker

	Ledger     *service.Ledger
	VoteStore  *service.VoteStore
	Settlement *service.SettlementService
	Reconciler *service.Reconciler
	Authz      *service.AuthzService

	tracer *sdktrace.TracerProvider
}

// New loads configuration, connects to PostgreSQL and Redis and wires the
// settlement services.
func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout).
		With().Str("service", serviceName).Str("instance", cfg.InstanceID).Logger()
	logger.Info().Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	if cfg.Observability.EnableMetrics {
		app.Metrics = observability.NewMetrics(metricsNamespace, nil)
		logger.Info().Msg("Metrics initialized")
	}

	app.Pool, err = postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	app.Redis, err = infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	app.TxManager = postgres.NewTxManager(app.Pool)
	app.Payments = postgres.NewPaymentRepository(app.Pool)
	app.Votes = postgres.NewVoteRepository(app.Pool)
	app.Catalog = postgres.NewCatalogRepository(app.Pool)
	app.Outbox = postgres.NewOutboxRepository(app.Pool)
	app.Idempotency = postgres.NewIdempotencyRepository(app.Pool)
	app.Locker = infraRedis.NewLocker(app.Redis)

	app.Providers, app.Sandbox = NewProviderFactory(cfg.Providers, cfg.Settlement.CircuitBreaker, app.Metrics)
	if app.Sandbox != nil {
		logger.Warn().Msg("Sandbox providers enabled, no real money moves")
	}
	logger.Info().Interface("methods", app.Providers.Methods()).Msg("Payment providers registered")

	app.Ledger = service.NewLedger(app.Payments, app.Outbox, app.TxManager, app.Metrics, logger)
	app.VoteStore = service.NewVoteStore(app.Votes, app.Metrics, logger)
	app.Settlement = service.NewSettlementService(
		app.Ledger, app.VoteStore, app.Catalog, app.Providers, app.TxManager,
		SettlementConfig(cfg.Settlement), app.Metrics, logger,
	)
	app.Reconciler = service.NewReconciler(
		app.Ledger, app.Settlement, app.Locker,
		ReconcilerConfig(cfg.Settlement), app.Metrics, logger,
	)
	app.Authz = service.NewAuthzService(app.Catalog)

	return app, nil
}

// NewProviderFactory registers a provider for every configured method. In
// sandbox mode every method is served by an in-process MockProvider, which is
// also returned so callers can settle sandbox payments.
func NewProviderFactory(
	cfg config.ProvidersConfig,
	cb config.CircuitBreakerConfig,
	observer providers.Observer,
) (*providers.Factory, map[payment.Method]*providers.MockProvider) {
	opts := []providers.FactoryOption{providers.WithBreakerSettings(breakerSettings(cb))}
	if observer != nil {
		opts = append(opts, providers.WithObserver(observer))
	}
	factory := providers.NewFactory(opts...)

	if cfg.Sandbox {
		sandbox := make(map[payment.Method]*providers.MockProvider, len(payment.Methods))
		for _, m := range payment.Methods {
			p := providers.NewMockProvider(m,
				providers.WithWebhookSecret(cfg.SandboxWebhookSecret),
				providers.WithAutoApprove(cfg.SandboxAutoApprove),
			)
			factory.Register(p)
			sandbox[m] = p
		}
		return factory, sandbox
	}

	client := providers.NewHTTPClient(cfg.HTTPTimeout)
	if cfg.Paystack.Enabled() {
		factory.Register(providers.NewPaystack(providers.PaystackConfig{
			SecretKey:   cfg.Paystack.SecretKey,
			BaseURL:     cfg.Paystack.BaseURL,
			CallbackURL: cfg.Paystack.CallbackURL,
		}, client))
	}
	if cfg.MoMo.Enabled() {
		factory.Register(providers.NewMoMo(providers.MoMoConfig{
			BaseURL:           cfg.MoMo.BaseURL,
			SubscriptionKey:   cfg.MoMo.SubscriptionKey,
			APIUser:           cfg.MoMo.APIUser,
			APIKey:            cfg.MoMo.APIKey,
			TargetEnvironment: cfg.MoMo.TargetEnvironment,
			Currency:          cfg.MoMo.Currency,
		}, client))
	}
	if cfg.Hubtel.Enabled() {
		factory.Register(providers.NewHubtel(providers.HubtelConfig{
			BaseURL:               cfg.Hubtel.BaseURL,
			ClientID:              cfg.Hubtel.ClientID,
			ClientSecret:          cfg.Hubtel.ClientSecret,
			MerchantAccountNumber: cfg.Hubtel.MerchantAccountNumber,
			CallbackSecret:        cfg.Hubtel.CallbackSecret,
			CallbackURL:           cfg.Hubtel.CallbackURL,
			ReturnURL:             cfg.Hubtel.ReturnURL,
			CancellationURL:       cfg.Hubtel.CancellationURL,
		}, client))
	}
	return factory, nil
}

func breakerSettings(cb config.CircuitBreakerConfig) providers.BreakerSettings {
	s := providers.DefaultBreakerSettings()
	if cb.MaxRequests > 0 {
		s.MaxRequests = cb.MaxRequests
	}
	if cb.Interval > 0 {
		s.Interval = cb.Interval
	}
	if cb.Timeout > 0 {
		s.Timeout = cb.Timeout
	}
	if cb.MinRequests > 0 {
		s.MinRequests = cb.MinRequests
	}
	if cb.FailureRatio > 0 {
		s.FailureRatio = cb.FailureRatio
	}
	return s
}

// SettlementConfig maps the settlement section of the config file.
func SettlementConfig(c config.SettlementConfig) service.SettlementConfig {
	s := service.DefaultSettlementConfig()
	s.PushHorizon = c.PushHorizon
	s.RedirectHorizon = c.RedirectHorizon
	s.Poll = retry.Config{InitialDelay: c.PollInitialInterval, MaxDelay: c.PollMaxInterval}
	s.Verify.MaxAttempts = c.VerifyAttempts
	return s
}

func ReconcilerConfig(c config.SettlementConfig) service.ReconcilerConfig {
	r := service.DefaultReconcilerConfig()
	if c.ReconcileBatchSize > 0 {
		r.BatchSize = c.ReconcileBatchSize
	}
	if c.LockTTL > 0 {
		r.LockTTL = c.LockTTL
	}
	return r
}

// PushLockTTL covers a whole push poll plus one verification.
func PushLockTTL(c config.SettlementConfig) time.Duration {
	return c.PushHorizon + c.LockTTL
}

func (a *App) Close() {
	if a.tracer != nil {
		if err := observability.Shutdown(context.Background(), a.tracer); err != nil {
			a.Logger.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
