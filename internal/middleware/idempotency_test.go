package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cassiomorais/awards/internal/repository/postgres"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*postgres.IdempotencyEntry
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{entries: make(map[string]*postgres.IdempotencyEntry)}
}

func (s *memoryIdempotencyStore) Get(_ context.Context, key string) (*postgres.IdempotencyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key], nil
}

func (s *memoryIdempotencyStore) Set(_ context.Context, e *postgres.IdempotencyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.Key]; !ok {
		s.entries[e.Key] = e
	}
	return nil
}

func countingHandler(calls *int, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	var calls int
	handler := Idempotency(newMemoryIdempotencyStore(), time.Hour)(countingHandler(&calls, http.StatusCreated, `{"ok":true}`))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/votes", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusCreated, w.Code)
	}
	assert.Equal(t, 2, calls)
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	var calls int
	store := newMemoryIdempotencyStore()
	handler := Idempotency(store, time.Hour)(countingHandler(&calls, http.StatusCreated, `{"payment_id":"p-1"}`))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/votes", strings.NewReader(`{"amount":"1.00"}`))
		req.Header.Set("Idempotency-Key", "key-1")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	first := send()
	second := send()

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
}

func TestIdempotency_DifferentBodyConflicts(t *testing.T) {
	var calls int
	handler := Idempotency(newMemoryIdempotencyStore(), time.Hour)(countingHandler(&calls, http.StatusCreated, `{}`))

	for i, body := range []string{`{"amount":"1.00"}`, `{"amount":"2.00"}`} {
		req := httptest.NewRequest(http.MethodPost, "/votes", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "key-1")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if i == 1 {
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		}
	}
	assert.Equal(t, 1, calls)
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	var calls int
	store := newMemoryIdempotencyStore()
	handler := Idempotency(store, time.Hour)(countingHandler(&calls, http.StatusServiceUnavailable, `{"code":"provider_unavailable"}`))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/votes", strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", "key-1")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.entries)
}

func TestIdempotency_KeysAreScopedPerUser(t *testing.T) {
	var calls int
	store := newMemoryIdempotencyStore()
	handler := Idempotency(store, time.Hour)(countingHandler(&calls, http.StatusCreated, `{}`))

	for _, user := range []uuid.UUID{uuid.New(), uuid.New()} {
		req := httptest.NewRequest(http.MethodPost, "/votes", strings.NewReader(`{}`))
		req = req.WithContext(WithUserID(req.Context(), user))
		req.Header.Set("Idempotency-Key", "shared")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
	require.Len(t, store.entries, 2)
}

func TestIdempotency_OversizedResponseIsNotStored(t *testing.T) {
	store := newMemoryIdempotencyStore()
	large := strings.Repeat("x", maxIdempotencyBodySize+1)
	handler := Idempotency(store, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(large))
	}))

	req := httptest.NewRequest(http.MethodPost, "/votes", strings.NewReader(`{}`))
	req.Header.Set("Idempotency-Key", "key-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, len(large), w.Body.Len())
	assert.Empty(t, store.entries)
}
