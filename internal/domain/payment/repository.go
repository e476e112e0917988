package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for ledger persistence
type Repository interface {
	// Create inserts a new pending payment
	Create(ctx context.Context, payment *Payment) error

	// GetByID retrieves a payment by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// GetByReference retrieves a payment by transaction reference
	GetByReference(ctx context.Context, reference string) (*Payment, error)

	// GetByProviderReference retrieves a payment by the provider-issued reference
	GetByProviderReference(ctx context.Context, providerRef string) (*Payment, error)

	// Settle moves a pending payment to a terminal status. It reports false
	// when the payment was no longer pending and nothing was written.
	Settle(ctx context.Context, reference string, status Status, reason *string) (bool, error)

	// MarkInitiated stamps initiated_at and the provider reference on a pending payment
	MarkInitiated(ctx context.Context, id uuid.UUID, providerRef, redirectURL *string) error

	// RecordInitiationFailure notes a transient initiation failure on a pending payment
	RecordInitiationFailure(ctx context.Context, id uuid.UUID, reason string) error

	// ListPending lists pending payments matching the filter, oldest first
	ListPending(ctx context.Context, filter PendingFilter) ([]*Payment, error)

	// ListSettledWithoutVote lists successful payments that have no vote
	ListSettledWithoutVote(ctx context.Context, limit int) ([]*Payment, error)

	// AddEvent adds a payment event for audit trail
	AddEvent(ctx context.Context, event *Event) error

	// GetEvents retrieves events for a payment
	GetEvents(ctx context.Context, paymentID uuid.UUID) ([]*Event, error)

	// ListEvents lists audit events of one type across payments, newest first
	ListEvents(ctx context.Context, eventType string, limit, offset int) ([]*Event, error)
}

// PendingFilter narrows ListPending
type PendingFilter struct {
	Method        *Method
	CreatedBefore *time.Time
	Limit         int
}

// Event represents an entry in the payment audit trail
type Event struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	EventType string
	EventData map[string]any
	CreatedAt time.Time
}

// NewEvent builds an audit event for a payment
func NewEvent(paymentID uuid.UUID, eventType string, data map[string]any) *Event {
	return &Event{
		ID:        uuid.New(),
		PaymentID: paymentID,
		EventType: eventType,
		EventData: data,
		CreatedAt: time.Now().UTC(),
	}
}
