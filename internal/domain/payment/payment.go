package payment

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/google/uuid"
)

// Status is the ledger status of a payment record
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Method identifies the payment provider used for a vote purchase
type Method string

const (
	MethodPaystack Method = "paystack"
	MethodMoMo     Method = "mtn_momo"
	MethodHubtel   Method = "hubtel"
)

// Methods lists every supported payment method.
var Methods = []Method{MethodPaystack, MethodMoMo, MethodHubtel}

// ParseMethod converts a raw method name into a Method
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Methods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", errors.ErrUnknownMethod, s)
}

// IsPush reports whether confirmation arrives on the payer's phone with no
// redirect and no webhook.
func (m Method) IsPush() bool {
	return m == MethodMoMo
}

// State is the settlement state derived from the ledger record
type State string

const (
	StateInitiated           State = "INITIATED"
	StatePendingConfirmation State = "PENDING_CONFIRMATION"
	StateConfirmed           State = "CONFIRMED"
	StateRejected            State = "REJECTED"
)

// Event types recorded on the audit trail
const (
	EventCreated           = "payment.created"
	EventInitiated         = "payment.initiated"
	EventInitiationFailed  = "payment.initiation_failed"
	EventConfirmed         = "payment.confirmed"
	EventRejected          = "payment.rejected"
	EventVoteMaterialized  = "vote.materialized"
	EventSettlementAnomaly = "settlement.anomaly"
)

// Metadata ties a payment to the vote it pays for
type Metadata struct {
	NomineeID  uuid.UUID
	EventID    uuid.UUID
	PositionID uuid.UUID
}

// Validate checks that all vote targets are present.
func (m Metadata) Validate() error {
	if m.NomineeID == uuid.Nil {
		return errors.NewValidationError("nominee_id", "is required")
	}
	if m.EventID == uuid.Nil {
		return errors.NewValidationError("event_id", "is required")
	}
	if m.PositionID == uuid.Nil {
		return errors.NewValidationError("position_id", "is required")
	}
	return nil
}

// PayerContact is how the provider reaches the payer
type PayerContact struct {
	Email string
	Phone string
}

// Payment is a PaymentRecord in the ledger
type Payment struct {
	ID                 uuid.UUID
	Reference          string
	ProviderReference  *string
	VoterID            uuid.UUID
	Amount             Amount
	Method             Method
	Status             Status
	Metadata           Metadata
	Payer              PayerContact
	RedirectURL        *string
	InitiatedAt        *time.Time
	LastError          *string
	InitiationAttempts int
	CreatedAt          time.Time
	UpdatedAt          time.Time
	SettledAt          *time.Time
}

// Amount is a monetary amount in minor units (pesewas for GHS).
type Amount struct {
	ValueMinor int64
	Currency   string
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	whole := a.ValueMinor / 100
	frac := a.ValueMinor % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, a.Currency)
}

// Validate checks that the amount is valid.
func (a Amount) Validate() error {
	return validateAmount(a)
}

// NewPayment builds a pending payment with a fresh transaction reference
func NewPayment(voterID uuid.UUID, amount Amount, method Method, metadata Metadata, payer PayerContact) (*Payment, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, errors.NewValidationError("payment_method", err.Error())
	}
	if err := metadata.Validate(); err != nil {
		return nil, err
	}
	if voterID == uuid.Nil {
		return nil, errors.NewValidationError("voter_id", "is required")
	}
	if err := validatePayer(method, payer); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Payment{
		ID:        uuid.New(),
		Reference: uuid.NewString(),
		VoterID:   voterID,
		Amount:    amount,
		Method:    method,
		Status:    StatusPending,
		Metadata:  metadata,
		Payer:     payer,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// State derives the settlement state from the ledger status and initiation mark.
func (p *Payment) State() State {
	switch p.Status {
	case StatusSuccess:
		return StateConfirmed
	case StatusFailed:
		return StateRejected
	}
	if p.InitiatedAt != nil {
		return StatePendingConfirmation
	}
	return StateInitiated
}

// CanTransitionTo checks if the payment can transition to the given status
func (p *Payment) CanTransitionTo(newStatus Status) bool {
	return p.Status == StatusPending && (newStatus == StatusSuccess || newStatus == StatusFailed)
}

// TransitionTo settles the payment. Terminal records never change.
func (p *Payment) TransitionTo(newStatus Status) error {
	if !p.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(p.Status)+" to "+string(newStatus),
			errors.ErrInvalidTransition,
		)
	}

	now := time.Now().UTC()
	p.Status = newStatus
	p.UpdatedAt = now
	p.SettledAt = &now
	return nil
}

// MarkInitiated records the provider's acceptance of the initiation
func (p *Payment) MarkInitiated(providerRef, redirectURL *string) error {
	if p.Status != StatusPending {
		return errors.ErrNotInitiable
	}
	now := time.Now().UTC()
	p.InitiatedAt = &now
	p.InitiationAttempts++
	if providerRef != nil {
		p.ProviderReference = providerRef
	}
	p.RedirectURL = redirectURL
	p.LastError = nil
	p.UpdatedAt = now
	return nil
}

// RecordInitiationFailure keeps the payment INITIATED and notes the failure
func (p *Payment) RecordInitiationFailure(reason string) {
	p.InitiationAttempts++
	p.LastError = &reason
	p.UpdatedAt = time.Now().UTC()
}

// IsTerminal checks if the payment is settled
func (p *Payment) IsTerminal() bool {
	return p.Status == StatusSuccess || p.Status == StatusFailed
}

// VerifyReference is the identifier the provider answers verification for.
func (p *Payment) VerifyReference() string {
	if p.Method == MethodHubtel && p.ProviderReference != nil {
		return *p.ProviderReference
	}
	return p.Reference
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

func validateAmount(amount Amount) error {
	if amount.ValueMinor <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if amount.Currency == "" {
		return errors.NewValidationError("currency", "cannot be empty")
	}
	if !currencyPattern.MatchString(amount.Currency) {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return nil
}

func validatePayer(method Method, payer PayerContact) error {
	switch method {
	case MethodMoMo:
		if payer.Phone == "" {
			return errors.NewValidationError("phone", "is required for mobile money")
		}
	case MethodPaystack:
		if payer.Email == "" {
			return errors.NewValidationError("email", "is required for card checkout")
		}
	}
	return nil
}
