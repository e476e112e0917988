package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Providers     ProvidersConfig     `mapstructure:"providers"`
	Settlement    SettlementConfig    `mapstructure:"settlement"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Auth          AuthConfig          `mapstructure:"auth"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration   `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig      `mapstructure:"cors"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// RateLimitConfig is requests per minute per client IP.
type RateLimitConfig struct {
	Votes    int `mapstructure:"votes"`
	Webhooks int `mapstructure:"webhooks"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

type ProvidersConfig struct {
	// Sandbox replaces every real provider with the in-process sandbox.
	Sandbox              bool           `mapstructure:"sandbox"`
	SandboxWebhookSecret string         `mapstructure:"sandbox_webhook_secret"`
	SandboxAutoApprove   time.Duration  `mapstructure:"sandbox_auto_approve"`
	HTTPTimeout          time.Duration  `mapstructure:"http_timeout"`
	Paystack             PaystackConfig `mapstructure:"paystack"`
	MoMo                 MoMoConfig     `mapstructure:"momo"`
	Hubtel               HubtelConfig   `mapstructure:"hubtel"`
}

type PaystackConfig struct {
	SecretKey   string `mapstructure:"secret_key"`
	BaseURL     string `mapstructure:"base_url"`
	CallbackURL string `mapstructure:"callback_url"`
}

type MoMoConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	SubscriptionKey   string `mapstructure:"subscription_key"`
	APIUser           string `mapstructure:"api_user"`
	APIKey            string `mapstructure:"api_key"`
	TargetEnvironment string `mapstructure:"target_environment"`
	Currency          string `mapstructure:"currency"`
}

type HubtelConfig struct {
	BaseURL               string `mapstructure:"base_url"`
	ClientID              string `mapstructure:"client_id"`
	ClientSecret          string `mapstructure:"client_secret"`
	MerchantAccountNumber string `mapstructure:"merchant_account_number"`
	CallbackSecret        string `mapstructure:"callback_secret"`
	CallbackURL           string `mapstructure:"callback_url"`
	ReturnURL             string `mapstructure:"return_url"`
	CancellationURL       string `mapstructure:"cancellation_url"`
}

func (c PaystackConfig) Enabled() bool { return c.SecretKey != "" }
func (c MoMoConfig) Enabled() bool     { return c.SubscriptionKey != "" && c.APIUser != "" }
func (c HubtelConfig) Enabled() bool   { return c.ClientID != "" }

type SettlementConfig struct {
	// PushHorizon bounds how long a push-to-phone payment may stay pending.
	PushHorizon time.Duration `mapstructure:"push_horizon"`
	// RedirectHorizon bounds how long a checkout payment may stay pending.
	RedirectHorizon     time.Duration        `mapstructure:"redirect_horizon"`
	PollInitialInterval time.Duration        `mapstructure:"poll_initial_interval"`
	PollMaxInterval     time.Duration        `mapstructure:"poll_max_interval"`
	VerifyAttempts      uint                 `mapstructure:"verify_attempts"`
	ReconcileInterval   time.Duration        `mapstructure:"reconcile_interval"`
	ReconcileBatchSize  int                  `mapstructure:"reconcile_batch_size"`
	LockTTL             time.Duration        `mapstructure:"lock_ttl"`
	CircuitBreaker      CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

type WorkerConfig struct {
	BatchSize          int64         `mapstructure:"batch_size"`
	BlockDuration      time.Duration `mapstructure:"block_duration"`
	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	ConsumerGroup      string        `mapstructure:"consumer_group"`
	IdempotencyTTL     time.Duration `mapstructure:"idempotency_ttl"`
	OutboxRetention    time.Duration `mapstructure:"outbox_retention"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// AWARDS_SETTLEMENT_PUSH_HORIZON overrides settlement.push_horizon; only
	// keys with a default are picked up from the environment.
	v.SetEnvPrefix("AWARDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/awards")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}

	errs = append(errs, c.Settlement.validate()...)
	errs = append(errs, c.Providers.validate()...)

	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt_secret required in production"))
		}
		if c.Providers.Sandbox {
			errs = append(errs, fmt.Errorf("providers.sandbox must be off in production"))
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

func (s SettlementConfig) validate() []error {
	var errs []error
	if s.PushHorizon <= 0 {
		errs = append(errs, fmt.Errorf("settlement.push_horizon must be positive"))
	}
	if s.RedirectHorizon <= 0 {
		errs = append(errs, fmt.Errorf("settlement.redirect_horizon must be positive"))
	}
	if s.PollInitialInterval <= 0 || s.PollMaxInterval < s.PollInitialInterval {
		errs = append(errs, fmt.Errorf("settlement.poll_initial_interval must be positive and not exceed poll_max_interval"))
	}
	if s.VerifyAttempts == 0 {
		errs = append(errs, fmt.Errorf("settlement.verify_attempts must be positive"))
	}
	if s.ReconcileInterval <= 0 {
		errs = append(errs, fmt.Errorf("settlement.reconcile_interval must be positive"))
	}
	if s.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("settlement.lock_ttl must be positive"))
	}
	return errs
}

func (p ProvidersConfig) validate() []error {
	if p.Sandbox {
		if p.SandboxWebhookSecret == "" {
			return []error{fmt.Errorf("providers.sandbox_webhook_secret is required in sandbox mode")}
		}
		return nil
	}

	var errs []error
	if !p.Paystack.Enabled() && !p.MoMo.Enabled() && !p.Hubtel.Enabled() {
		errs = append(errs, fmt.Errorf("at least one payment provider must be configured"))
	}
	if p.MoMo.Enabled() && p.MoMo.APIKey == "" {
		errs = append(errs, fmt.Errorf("providers.momo.api_key is required"))
	}
	if p.Hubtel.Enabled() {
		if p.Hubtel.ClientSecret == "" {
			errs = append(errs, fmt.Errorf("providers.hubtel.client_secret is required"))
		}
		if p.Hubtel.CallbackSecret == "" {
			errs = append(errs, fmt.Errorf("providers.hubtel.callback_secret is required"))
		}
	}
	return errs
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.rate_limit.votes", 30)
	v.SetDefault("server.rate_limit.webhooks", 600)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "awards")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "awards")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.migrations_path", "migrations")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Provider defaults
	v.SetDefault("providers.sandbox", false)
	v.SetDefault("providers.sandbox_auto_approve", "0s")
	v.SetDefault("providers.http_timeout", "15s")
	v.SetDefault("providers.sandbox_webhook_secret", "")
	v.SetDefault("providers.paystack.secret_key", "")
	v.SetDefault("providers.paystack.base_url", "https://api.paystack.co")
	v.SetDefault("providers.paystack.callback_url", "")
	v.SetDefault("providers.momo.base_url", "")
	v.SetDefault("providers.momo.subscription_key", "")
	v.SetDefault("providers.momo.api_user", "")
	v.SetDefault("providers.momo.api_key", "")
	v.SetDefault("providers.momo.target_environment", "sandbox")
	v.SetDefault("providers.momo.currency", "")
	v.SetDefault("providers.hubtel.base_url", "https://api.hubtel.com")
	v.SetDefault("providers.hubtel.client_id", "")
	v.SetDefault("providers.hubtel.client_secret", "")
	v.SetDefault("providers.hubtel.merchant_account_number", "")
	v.SetDefault("providers.hubtel.callback_secret", "")
	v.SetDefault("providers.hubtel.callback_url", "")
	v.SetDefault("providers.hubtel.return_url", "")
	v.SetDefault("providers.hubtel.cancellation_url", "")

	// Settlement defaults
	v.SetDefault("settlement.push_horizon", "5m")
	v.SetDefault("settlement.redirect_horizon", "1h")
	v.SetDefault("settlement.poll_initial_interval", "2s")
	v.SetDefault("settlement.poll_max_interval", "30s")
	v.SetDefault("settlement.verify_attempts", 3)
	v.SetDefault("settlement.reconcile_interval", "1m")
	v.SetDefault("settlement.reconcile_batch_size", 100)
	v.SetDefault("settlement.lock_ttl", "30s")
	v.SetDefault("settlement.circuit_breaker.max_requests", 10)
	v.SetDefault("settlement.circuit_breaker.interval", "60s")
	v.SetDefault("settlement.circuit_breaker.timeout", "30s")
	v.SetDefault("settlement.circuit_breaker.min_requests", 10)
	v.SetDefault("settlement.circuit_breaker.failure_ratio", 0.6)

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.outbox_poll_interval", "2s")
	v.SetDefault("worker.consumer_group", "settlement-workers")
	v.SetDefault("worker.idempotency_ttl", "24h")
	v.SetDefault("worker.outbox_retention", "72h")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiry", "24h")

	v.SetDefault("instance_id", "awards-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrateURL is the connection string golang-migrate expects.
func (c *DatabaseConfig) MigrateURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
