package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Settlement metrics
	PaymentsTotal       *prometheus.CounterVec
	SettlementDuration  *prometheus.HistogramVec
	PendingPayments     *prometheus.GaugeVec
	InitiationRetries   *prometheus.CounterVec
	VotesMaterialized   prometheus.Counter
	SettlementAnomalies *prometheus.CounterVec
	WebhooksTotal       *prometheus.CounterVec

	// Provider metrics
	ProviderRequests        *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec

	// Worker metrics
	WorkerMessagesProcessed  *prometheus.CounterVec
	WorkerProcessingDuration *prometheus.HistogramVec
	ReconcileActions         *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		PaymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_total",
				Help:      "Total number of ledger writes by method and resulting status",
			},
			[]string{"method", "status"},
		),
		SettlementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "settlement_duration_seconds",
				Help:      "Time from payment creation to settlement",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900, 3600},
			},
			[]string{"method", "status"},
		),
		PendingPayments: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_payments",
				Help:      "Pending payments seen by the last reconcile pass",
			},
			[]string{"method"},
		),
		InitiationRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "initiation_retries_total",
				Help:      "Total number of initiation retries",
			},
			[]string{"method"},
		),
		VotesMaterialized: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "votes_materialized_total",
				Help:      "Total number of votes created from confirmed payments",
			},
		),
		SettlementAnomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlement_anomalies_total",
				Help:      "Conflicting settlement signals recorded for review",
			},
			[]string{"kind"},
		),
		WebhooksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhooks_total",
				Help:      "Provider notifications by method and handling result",
			},
			[]string{"method", "result"},
		),
		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Outbound provider calls",
			},
			[]string{"method", "op", "result"},
		),
		ProviderRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Outbound provider call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "op"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		WorkerMessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_messages_processed_total",
				Help:      "Total number of worker messages processed",
			},
			[]string{"stream", "status"},
		),
		WorkerProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_processing_duration_seconds",
				Help:      "Worker message processing duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			},
			[]string{"stream"},
		),
		ReconcileActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_actions_total",
				Help:      "Reconciler actions by kind",
			},
			[]string{"action"},
		),
	}

	reg.MustRegister(
		m.PaymentsTotal,
		m.SettlementDuration,
		m.PendingPayments,
		m.InitiationRetries,
		m.VotesMaterialized,
		m.SettlementAnomalies,
		m.WebhooksTotal,
		m.ProviderRequests,
		m.ProviderRequestDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.WorkerMessagesProcessed,
		m.WorkerProcessingDuration,
		m.ReconcileActions,
	)

	return m
}

// The helpers below tolerate a nil *Metrics so callers can run without a registry.

func (m *Metrics) ObserveProviderRequest(method, op, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(method, op, result).Inc()
	m.ProviderRequestDuration.WithLabelValues(method, op).Observe(duration.Seconds())
}

func (m *Metrics) SetCircuitBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(state)
}

func (m *Metrics) RecordPayment(method, status string) {
	if m == nil {
		return
	}
	m.PaymentsTotal.WithLabelValues(method, status).Inc()
}

func (m *Metrics) RecordSettlement(method, status string, since time.Time) {
	if m == nil {
		return
	}
	m.PaymentsTotal.WithLabelValues(method, status).Inc()
	m.SettlementDuration.WithLabelValues(method, status).Observe(time.Since(since).Seconds())
}

func (m *Metrics) RecordVote() {
	if m == nil {
		return
	}
	m.VotesMaterialized.Inc()
}

func (m *Metrics) RecordAnomaly(kind string) {
	if m == nil {
		return
	}
	m.SettlementAnomalies.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordWebhook(method, result string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(method, result).Inc()
}

func (m *Metrics) RecordInitiationRetry(method string) {
	if m == nil {
		return
	}
	m.InitiationRetries.WithLabelValues(method).Inc()
}

func (m *Metrics) RecordReconcile(action string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ReconcileActions.WithLabelValues(action).Add(float64(n))
}

func (m *Metrics) RecordWorkerMessage(stream, status string, since time.Time) {
	if m == nil {
		return
	}
	m.WorkerMessagesProcessed.WithLabelValues(stream, status).Inc()
	m.WorkerProcessingDuration.WithLabelValues(stream).Observe(time.Since(since).Seconds())
}

func (m *Metrics) SetPending(method string, n int) {
	if m == nil {
		return
	}
	m.PendingPayments.WithLabelValues(method).Set(float64(n))
}
