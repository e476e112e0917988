package outbox

import (
	"time"

	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/google/uuid"
)

const AggregatePayment = "payment"

// Entry is a settlement event written in the same transaction as the ledger
// change and relayed to the event stream by the worker.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       map[string]any
	Status        Status
	RetryCount    int
	MaxRetries    int
	LastError     *string
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

const defaultMaxRetries = 5

func NewEntry(aggregateType string, aggregateID uuid.UUID, eventType string, payload map[string]any) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusPending,
		MaxRetries:    defaultMaxRetries,
		CreatedAt:     time.Now().UTC(),
	}
}

// ForPayment snapshots a payment into a settlement event.
func ForPayment(p *payment.Payment, eventType string) *Entry {
	return NewEntry(AggregatePayment, p.ID, eventType, map[string]any{
		"payment_id": p.ID.String(),
		"reference":  p.Reference,
		"method":     string(p.Method),
		"status":     string(p.Status),
		"state":      string(p.State()),
		"amount":     p.Amount.ValueMinor,
		"currency":   p.Amount.Currency,
	})
}
