package providers

import (
	"context"

	"github.com/cassiomorais/awards/internal/domain/payment"
)

type InitiateRequest struct {
	Reference   string
	Amount      payment.Amount
	Payer       payment.PayerContact
	Metadata    payment.Metadata
	Description string
}

// InitiateResult is what the provider handed back on acceptance. Push-to-phone
// initiations carry neither field.
type InitiateResult struct {
	ProviderReference *string
	RedirectURL       *string
}

type Provider interface {
	// Method returns the payment method this provider serves.
	Method() payment.Method
	// Initiate asks the provider to start collecting the payment.
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	// Verify asks the provider whether the payment succeeded. It returns
	// false with a nil error while the payment is still outstanding.
	Verify(ctx context.Context, reference string) (bool, error)
}

type WebhookKind string

const (
	WebhookSuccess WebhookKind = "success"
	WebhookFailure WebhookKind = "failure"
	WebhookIgnored WebhookKind = "ignored"
)

// WebhookEvent is a provider notification reduced to what settlement needs
type WebhookEvent struct {
	Type              string
	Kind              WebhookKind
	Reference         string
	ProviderReference string
	Reason            string
}

// WebhookProvider is a provider that pushes signed notifications.
type WebhookProvider interface {
	Provider
	// SignatureHeader names the HTTP header carrying the signature.
	SignatureHeader() string
	// ValidateSignature returns ErrInvalidSignature unless signature authenticates payload.
	ValidateSignature(payload []byte, signature string) error
	// ParseWebhook decodes an authenticated payload.
	ParseWebhook(payload []byte) (*WebhookEvent, error)
}
