package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBreakers map[payment.Method]gobreaker.State

func (f fakeBreakers) Methods() []payment.Method {
	out := make([]payment.Method, 0, len(f))
	for _, m := range payment.Methods {
		if _, ok := f[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

func (f fakeBreakers) BreakerState(m payment.Method) (gobreaker.State, bool) {
	s, ok := f[m]
	return s, ok
}

func up(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func readiness(t *testing.T, h *HealthController) (int, ReadinessResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	h.Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var resp ReadinessResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return w.Code, resp
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		db         DependencyCheck
		breakers   fakeBreakers
		wantCode   int
		wantStatus string
	}{
		{
			name:       "all closed",
			db:         up,
			breakers:   fakeBreakers{payment.MethodPaystack: gobreaker.StateClosed, payment.MethodMoMo: gobreaker.StateClosed},
			wantCode:   http.StatusOK,
			wantStatus: "ready",
		},
		{
			name:       "one provider open",
			db:         up,
			breakers:   fakeBreakers{payment.MethodPaystack: gobreaker.StateClosed, payment.MethodMoMo: gobreaker.StateOpen},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
		},
		{
			name:       "every provider open",
			db:         up,
			breakers:   fakeBreakers{payment.MethodPaystack: gobreaker.StateOpen, payment.MethodMoMo: gobreaker.StateOpen},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not ready",
		},
		{
			name:       "database down",
			db:         down,
			breakers:   fakeBreakers{payment.MethodPaystack: gobreaker.StateHalfOpen},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthController(tt.breakers)
			h.AddCheck("database", tt.db)

			code, resp := readiness(t, h)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			for m, state := range tt.breakers {
				assert.Equal(t, state.String(), resp.Providers[string(m)])
			}
		})
	}
}

func TestReadiness_ReportsEachCheck(t *testing.T) {
	h := NewHealthController(nil)
	h.AddCheck("database", up)
	h.AddCheck("redis", down)

	code, resp := readiness(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"database": "up", "redis": "down"}, resp.Checks)
	assert.Empty(t, resp.Providers)
}

func TestPoolCheck_NilPool(t *testing.T) {
	assert.ErrorIs(t, PoolCheck(nil)(context.Background()), errNotConfigured)
}
