package providers

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/payment"
)

// MockProvider is the sandbox provider used for local runs. Payments stay
// outstanding until Settle is called or the auto-approve delay elapses.
type MockProvider struct {
	method          payment.Method
	failureRate     float64 // 0.0 to 1.0
	unavailableRate float64 // 0.0 to 1.0
	latency         time.Duration
	autoApprove     time.Duration
	secret          string

	mu        sync.Mutex
	initiated map[string]time.Time
	outcomes  map[string]bool
}

type MockProviderOption func(*MockProvider)

func WithFailureRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.failureRate = rate }
}

func WithUnavailableRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.unavailableRate = rate }
}

func WithLatency(d time.Duration) MockProviderOption {
	return func(p *MockProvider) { p.latency = d }
}

func WithAutoApprove(d time.Duration) MockProviderOption {
	return func(p *MockProvider) { p.autoApprove = d }
}

func WithWebhookSecret(secret string) MockProviderOption {
	return func(p *MockProvider) { p.secret = secret }
}

func NewMockProvider(method payment.Method, opts ...MockProviderOption) *MockProvider {
	p := &MockProvider{
		method:    method,
		latency:   50 * time.Millisecond,
		initiated: make(map[string]time.Time),
		outcomes:  make(map[string]bool),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockProvider) Method() payment.Method { return p.method }

func (p *MockProvider) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	select {
	case <-time.After(p.latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if rand.Float64() < p.unavailableRate {
		return nil, fmt.Errorf("%s: %w: simulated outage", p.method, domainErrors.ErrProviderUnavailable)
	}
	if rand.Float64() < p.failureRate {
		return nil, fmt.Errorf("%s: %w: simulated decline for %s", p.method, domainErrors.ErrProviderRejected, req.Reference)
	}

	p.mu.Lock()
	p.initiated[req.Reference] = time.Now()
	p.mu.Unlock()

	if p.method.IsPush() {
		return &InitiateResult{}, nil
	}
	redirect := "https://sandbox.invalid/checkout/" + req.Reference
	return &InitiateResult{RedirectURL: &redirect}, nil
}

func (p *MockProvider) Verify(ctx context.Context, reference string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if ok, settled := p.outcomes[reference]; settled {
		if !ok {
			return false, fmt.Errorf("%s: %w: payer declined", p.method, domainErrors.ErrProviderRejected)
		}
		return true, nil
	}
	if at, ok := p.initiated[reference]; ok && p.autoApprove > 0 && time.Since(at) >= p.autoApprove {
		return true, nil
	}
	return false, nil
}

// Settle fixes the outcome the sandbox reports for reference.
func (p *MockProvider) Settle(reference string, success bool) {
	p.mu.Lock()
	p.outcomes[reference] = success
	p.mu.Unlock()
}

func (p *MockProvider) SignatureHeader() string { return "x-sandbox-signature" }

func (p *MockProvider) ValidateSignature(payload []byte, signature string) error {
	return checkHMAC(sha256.New, p.secret, payload, signature)
}

type sandboxWebhook struct {
	Event     string `json:"event"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

func (p *MockProvider) ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var hook sandboxWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, domainErrors.NewValidationError("payload", "malformed sandbox webhook")
	}
	ev := &WebhookEvent{Type: hook.Event, Reference: hook.Reference, Kind: WebhookIgnored}
	switch hook.Event {
	case "charge.success":
		ev.Kind = WebhookSuccess
	case "charge.failed":
		ev.Kind = WebhookFailure
		ev.Reason = hook.Reason
	}
	return ev, nil
}
