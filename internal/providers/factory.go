package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/sony/gobreaker/v2"
)

// Observer receives provider call telemetry
type Observer interface {
	ObserveProviderRequest(method, op, result string, duration time.Duration)
	SetCircuitBreakerState(name string, state float64)
}

type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  10,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// Factory is the registry of providers by payment method. Every provider it
// hands out is guarded by its own circuit breaker.
type Factory struct {
	providers map[payment.Method]Provider
	breakers  map[payment.Method]*gobreaker.CircuitBreaker[any]
	settings  BreakerSettings
	observer  Observer
}

type FactoryOption func(*Factory)

func WithBreakerSettings(s BreakerSettings) FactoryOption {
	return func(f *Factory) { f.settings = s }
}

func WithObserver(o Observer) FactoryOption {
	return func(f *Factory) { f.observer = o }
}

func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		providers: make(map[payment.Method]Provider),
		breakers:  make(map[payment.Method]*gobreaker.CircuitBreaker[any]),
		settings:  DefaultBreakerSettings(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Factory) Register(p Provider) {
	name := string(p.Method())
	s := f.settings
	f.providers[p.Method()] = p
	f.breakers[p.Method()] = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && failureRatio >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domainErrors.ErrProviderRejected) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			if f.observer != nil {
				f.observer.SetCircuitBreakerState(name, float64(to))
			}
		},
	})
}

// Get returns the breaker-guarded provider for method.
func (f *Factory) Get(method payment.Method) (Provider, error) {
	p, ok := f.providers[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domainErrors.ErrProviderNotFound, method)
	}
	return &guardedProvider{inner: p, breaker: f.breakers[method], observer: f.observer}, nil
}

// Webhook returns the provider for method if it accepts signed notifications.
func (f *Factory) Webhook(method payment.Method) (WebhookProvider, error) {
	p, ok := f.providers[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domainErrors.ErrProviderNotFound, method)
	}
	wp, ok := p.(WebhookProvider)
	if !ok {
		return nil, fmt.Errorf("%w: %q does not send webhooks", domainErrors.ErrUnknownMethod, method)
	}
	return wp, nil
}

// BreakerState reports the breaker state for method.
func (f *Factory) BreakerState(method payment.Method) (gobreaker.State, bool) {
	b, ok := f.breakers[method]
	if !ok {
		return gobreaker.StateClosed, false
	}
	return b.State(), true
}

func (f *Factory) Methods() []payment.Method {
	out := make([]payment.Method, 0, len(f.providers))
	for _, m := range payment.Methods {
		if _, ok := f.providers[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

type guardedProvider struct {
	inner    Provider
	breaker  *gobreaker.CircuitBreaker[any]
	observer Observer
}

func (g *guardedProvider) Method() payment.Method { return g.inner.Method() }

func (g *guardedProvider) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	start := time.Now()
	res, err := g.breaker.Execute(func() (any, error) {
		return g.inner.Initiate(ctx, req)
	})
	err = breakerError(err)
	g.observe("initiate", resultLabel(err, true), start)
	if err != nil {
		return nil, err
	}
	return res.(*InitiateResult), nil
}

func (g *guardedProvider) Verify(ctx context.Context, reference string) (bool, error) {
	start := time.Now()
	res, err := g.breaker.Execute(func() (any, error) {
		return g.inner.Verify(ctx, reference)
	})
	err = breakerError(err)
	if err != nil {
		g.observe("verify", resultLabel(err, false), start)
		return false, err
	}
	ok := res.(bool)
	g.observe("verify", resultLabel(nil, ok), start)
	return ok, nil
}

func (g *guardedProvider) observe(op, result string, start time.Time) {
	if g.observer != nil {
		g.observer.ObserveProviderRequest(string(g.inner.Method()), op, result, time.Since(start))
	}
}

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit %v", domainErrors.ErrProviderUnavailable, err)
	}
	return err
}

func resultLabel(err error, ok bool) string {
	switch {
	case err == nil && ok:
		return "success"
	case err == nil:
		return "pending"
	case errors.Is(err, domainErrors.ErrProviderRejected):
		return "rejected"
	case errors.Is(err, domainErrors.ErrProviderUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
