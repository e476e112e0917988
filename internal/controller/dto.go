package controller

import (
	"time"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/cassiomorais/awards/internal/domain/vote"
	"github.com/cassiomorais/awards/internal/service"
	"github.com/shopspring/decimal"
)

// --- Request DTOs ---
// Amounts arrive as decimal strings in major units ("1.50") and are converted
// to minor units before reaching the service layer.

// VoteRequest buys one vote for a nominee.
type VoteRequest struct {
	NomineeID     string `json:"nominee_id" validate:"required,uuid"`
	EventID       string `json:"event_id" validate:"required,uuid"`
	PositionID    string `json:"position_id" validate:"required,uuid"`
	Amount        string `json:"amount" validate:"required"`
	Currency      string `json:"currency,omitempty" validate:"omitempty,len=3,uppercase"`
	PaymentMethod string `json:"payment_method" validate:"required"`
	Email         string `json:"email,omitempty" validate:"omitempty,email"`
	Phone         string `json:"phone,omitempty" validate:"omitempty,e164|numeric"`
}

// --- Response DTOs ---

type PaymentResponse struct {
	ID                 string     `json:"id"`
	Reference          string     `json:"reference"`
	ProviderReference  *string    `json:"provider_reference,omitempty"`
	VoterID            string     `json:"voter_id"`
	Amount             string     `json:"amount"`
	Currency           string     `json:"currency"`
	Method             string     `json:"payment_method"`
	Status             string     `json:"status"`
	State              string     `json:"state"`
	NomineeID          string     `json:"nominee_id"`
	EventID            string     `json:"event_id"`
	PositionID         string     `json:"position_id"`
	RedirectURL        *string    `json:"redirect_url,omitempty"`
	InitiationAttempts int        `json:"initiation_attempts"`
	LastError          *string    `json:"last_error,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	InitiatedAt        *time.Time `json:"initiated_at,omitempty"`
	SettledAt          *time.Time `json:"settled_at,omitempty"`
}

type PaymentEventResponse struct {
	ID        string         `json:"id"`
	PaymentID string         `json:"payment_id"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type VerifyResponse struct {
	Outcome string           `json:"outcome"`
	Payment *PaymentResponse `json:"payment"`
}

type VoteResponse struct {
	ID         string    `json:"id"`
	NomineeID  string    `json:"nominee_id"`
	EventID    string    `json:"event_id"`
	PositionID string    `json:"position_id"`
	PaymentID  string    `json:"payment_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type VoteHistoryResponse struct {
	VoteResponse
	NomineeName  string `json:"nominee_name"`
	PositionName string `json:"position_name"`
	EventName    string `json:"event_name"`
}

type StandingResponse struct {
	Rank       int    `json:"rank"`
	NomineeID  string `json:"nominee_id"`
	PositionID string `json:"position_id"`
	Name       string `json:"name"`
	Votes      int64  `json:"votes"`
}

type LeaderboardResponse struct {
	EventID   string             `json:"event_id"`
	Standings []StandingResponse `json:"standings"`
}

type NomineeVotesResponse struct {
	NomineeID string `json:"nominee_id"`
	Votes     int64  `json:"votes"`
}

type WebhookResponse struct {
	Result string `json:"result"`
}

type ReconcileResponse struct {
	Scanned   int `json:"scanned"`
	Confirmed int `json:"confirmed"`
	Rejected  int `json:"rejected"`
	Expired   int `json:"expired"`
	Repaired  int `json:"repaired"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

type ErrorResponse struct {
	Error   string           `json:"error"`
	Code    string           `json:"code"`
	Field   string           `json:"field,omitempty"`
	Payment *PaymentResponse `json:"payment,omitempty"`
}

// --- Conversion helpers ---

func FromPayment(p *payment.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:                 p.ID.String(),
		Reference:          p.Reference,
		ProviderReference:  p.ProviderReference,
		VoterID:            p.VoterID.String(),
		Amount:             minorToMajor(p.Amount.ValueMinor),
		Currency:           p.Amount.Currency,
		Method:             string(p.Method),
		Status:             string(p.Status),
		State:              string(p.State()),
		NomineeID:          p.Metadata.NomineeID.String(),
		EventID:            p.Metadata.EventID.String(),
		PositionID:         p.Metadata.PositionID.String(),
		RedirectURL:        p.RedirectURL,
		InitiationAttempts: p.InitiationAttempts,
		LastError:          p.LastError,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
		InitiatedAt:        p.InitiatedAt,
		SettledAt:          p.SettledAt,
	}
}

func FromPaymentEvent(e *payment.Event) PaymentEventResponse {
	return PaymentEventResponse{
		ID:        e.ID.String(),
		PaymentID: e.PaymentID.String(),
		EventType: e.EventType,
		Data:      e.EventData,
		CreatedAt: e.CreatedAt,
	}
}

func FromVote(v *vote.Vote) VoteResponse {
	return VoteResponse{
		ID:         v.ID.String(),
		NomineeID:  v.NomineeID.String(),
		EventID:    v.EventID.String(),
		PositionID: v.PositionID.String(),
		PaymentID:  v.PaymentID.String(),
		CreatedAt:  v.CreatedAt,
	}
}

func FromHistoryEntry(h vote.HistoryEntry) VoteHistoryResponse {
	return VoteHistoryResponse{
		VoteResponse: FromVote(&h.Vote),
		NomineeName:  h.NomineeName,
		PositionName: h.PositionName,
		EventName:    h.EventName,
	}
}

func FromReport(r service.ReconcileReport) ReconcileResponse {
	return ReconcileResponse{
		Scanned:   r.Scanned,
		Confirmed: r.Confirmed,
		Rejected:  r.Rejected,
		Expired:   r.Expired,
		Repaired:  r.Repaired,
		Skipped:   r.Skipped,
		Errors:    r.Errors,
	}
}

var maxMinor = decimal.NewFromInt(1<<62 - 1)

// majorToMinor converts a decimal amount in major units to minor units. Signs
// are preserved so the settlement engine can reject non-positive amounts.
func majorToMinor(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, domainErrors.NewValidationError("amount", "must be a decimal number")
	}
	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, domainErrors.NewValidationError("amount", "must have at most two decimal places")
	}
	if minor.Abs().GreaterThan(maxMinor) {
		return 0, domainErrors.NewValidationError("amount", "is out of range")
	}
	return minor.IntPart(), nil
}

func minorToMajor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
