package providers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	method    payment.Method
	verifyErr error
	calls     int
}

func (s *stubProvider) Method() payment.Method { return s.method }

func (s *stubProvider) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	s.calls++
	return &InitiateResult{}, nil
}

func (s *stubProvider) Verify(ctx context.Context, reference string) (bool, error) {
	s.calls++
	if s.verifyErr != nil {
		return false, s.verifyErr
	}
	return true, nil
}

type recordingObserver struct {
	mu      sync.Mutex
	results []string
	states  map[string]float64
}

func (o *recordingObserver) ObserveProviderRequest(method, op, result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, fmt.Sprintf("%s/%s/%s", method, op, result))
}

func (o *recordingObserver) SetCircuitBreakerState(name string, state float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.states == nil {
		o.states = map[string]float64{}
	}
	o.states[name] = state
}

func smallBreaker() BreakerSettings {
	return BreakerSettings{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, MinRequests: 3, FailureRatio: 0.5}
}

func TestFactory_Get(t *testing.T) {
	factory := NewFactory()
	factory.Register(NewMockProvider(payment.MethodPaystack))

	p, err := factory.Get(payment.MethodPaystack)
	require.NoError(t, err)
	assert.Equal(t, payment.MethodPaystack, p.Method())

	_, err = factory.Get(payment.MethodHubtel)
	assert.ErrorIs(t, err, domainErrors.ErrProviderNotFound)
}

func TestFactory_Webhook(t *testing.T) {
	factory := NewFactory()
	factory.Register(NewMockProvider(payment.MethodPaystack))
	factory.Register(&stubProvider{method: payment.MethodMoMo})

	wp, err := factory.Webhook(payment.MethodPaystack)
	require.NoError(t, err)
	assert.NotEmpty(t, wp.SignatureHeader())

	_, err = factory.Webhook(payment.MethodMoMo)
	assert.ErrorIs(t, err, domainErrors.ErrUnknownMethod)
}

func TestFactory_Methods(t *testing.T) {
	factory := NewFactory()
	factory.Register(&stubProvider{method: payment.MethodHubtel})
	factory.Register(&stubProvider{method: payment.MethodPaystack})

	assert.Equal(t, []payment.Method{payment.MethodPaystack, payment.MethodHubtel}, factory.Methods())
}

func TestFactory_BreakerOpensOnTransientFailures(t *testing.T) {
	obs := &recordingObserver{}
	stub := &stubProvider{method: payment.MethodMoMo, verifyErr: domainErrors.ErrProviderUnavailable}
	factory := NewFactory(WithBreakerSettings(smallBreaker()), WithObserver(obs))
	factory.Register(stub)

	p, err := factory.Get(payment.MethodMoMo)
	require.NoError(t, err)

	for range 3 {
		_, err := p.Verify(context.Background(), "ref")
		assert.ErrorIs(t, err, domainErrors.ErrProviderUnavailable)
	}

	state, ok := factory.BreakerState(payment.MethodMoMo)
	require.True(t, ok)
	assert.Equal(t, gobreaker.StateOpen, state)

	_, err = p.Verify(context.Background(), "ref")
	assert.ErrorIs(t, err, domainErrors.ErrProviderUnavailable)
	assert.Equal(t, 3, stub.calls, "open breaker must not reach the provider")
	assert.Equal(t, float64(gobreaker.StateOpen), obs.states["mtn_momo"])
}

func TestFactory_RejectionsDoNotTripBreaker(t *testing.T) {
	stub := &stubProvider{method: payment.MethodPaystack, verifyErr: domainErrors.ErrProviderRejected}
	factory := NewFactory(WithBreakerSettings(smallBreaker()))
	factory.Register(stub)

	p, err := factory.Get(payment.MethodPaystack)
	require.NoError(t, err)

	for range 5 {
		_, err := p.Verify(context.Background(), "ref")
		assert.ErrorIs(t, err, domainErrors.ErrProviderRejected)
	}

	state, _ := factory.BreakerState(payment.MethodPaystack)
	assert.Equal(t, gobreaker.StateClosed, state)
	assert.Equal(t, 5, stub.calls)
}

func TestFactory_ObservesResults(t *testing.T) {
	obs := &recordingObserver{}
	factory := NewFactory(WithObserver(obs))
	factory.Register(&stubProvider{method: payment.MethodHubtel})

	p, err := factory.Get(payment.MethodHubtel)
	require.NoError(t, err)

	_, err = p.Initiate(context.Background(), InitiateRequest{})
	require.NoError(t, err)
	ok, err := p.Verify(context.Background(), "chk")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"hubtel/initiate/success", "hubtel/verify/success"}, obs.results)
}
