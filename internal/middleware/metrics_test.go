package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cassiomorais/awards/internal/infrastructure/observability"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics("test", prometheus.NewRegistry())
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	metrics := newTestMetrics()

	r := chi.NewRouter()
	r.Use(Metrics(metrics))
	r.Get("/api/v1/events/{id}/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events/123/leaderboard", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, promtest.ToFloat64(
		metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/events/{id}/leaderboard", "200")))
}

func TestMetrics_RecordsStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		label      string
	}{
		{"created", http.StatusCreated, "201"},
		{"bad request", http.StatusBadRequest, "400"},
		{"unauthorized", http.StatusUnauthorized, "401"},
		{"unavailable", http.StatusServiceUnavailable, "503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := newTestMetrics()
			r := chi.NewRouter()
			r.Use(Metrics(metrics))
			r.Post("/test", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test", nil))

			assert.Equal(t, tt.statusCode, w.Code)
			assert.Equal(t, 1.0, promtest.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/test", tt.label)))
		})
	}
}

func TestMetrics_SkipsScrapeEndpoint(t *testing.T) {
	metrics := newTestMetrics()
	handler := Metrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, 0, promtest.CollectAndCount(metrics.HTTPRequestsTotal))
}

func TestMetrics_NilMetricsPassesThrough(t *testing.T) {
	handler := Metrics(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anything", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestStatusWriter_FirstHeaderWins(t *testing.T) {
	w := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

	sw.WriteHeader(http.StatusCreated)
	sw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusCreated, sw.statusCode)
}

func TestStatusWriter_DefaultStatus(t *testing.T) {
	w := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

	sw.Write([]byte("test"))

	assert.Equal(t, http.StatusOK, sw.statusCode)
}
