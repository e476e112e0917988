package vote

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Vote is an immutable record of one paid vote
type Vote struct {
	ID         uuid.UUID
	VoterID    uuid.UUID
	NomineeID  uuid.UUID
	EventID    uuid.UUID
	PositionID uuid.UUID
	PaymentID  uuid.UUID
	CreatedAt  time.Time
}

// Input carries what the settlement engine knows about a confirmed payment
type Input struct {
	VoterID    uuid.UUID
	NomineeID  uuid.UUID
	EventID    uuid.UUID
	PositionID uuid.UUID
	PaymentID  uuid.UUID
}

// New builds a vote from its input
func New(in Input) *Vote {
	return &Vote{
		ID:         uuid.New(),
		VoterID:    in.VoterID,
		NomineeID:  in.NomineeID,
		EventID:    in.EventID,
		PositionID: in.PositionID,
		PaymentID:  in.PaymentID,
		CreatedAt:  time.Now().UTC(),
	}
}

// HistoryEntry is a vote joined with the catalog names a voter sees.
type HistoryEntry struct {
	Vote
	NomineeName  string
	PositionName string
	EventName    string
}

// Tally is one leaderboard row
type Tally struct {
	NomineeID        uuid.UUID
	PositionID       uuid.UUID
	Name             string
	Votes            int64
	NomineeCreatedAt time.Time
}

// SortTallies orders by vote count descending, then earlier nominee creation,
// then nominee id.
func SortTallies(t []Tally) {
	sort.SliceStable(t, func(i, j int) bool {
		if t[i].Votes != t[j].Votes {
			return t[i].Votes > t[j].Votes
		}
		if !t[i].NomineeCreatedAt.Equal(t[j].NomineeCreatedAt) {
			return t[i].NomineeCreatedAt.Before(t[j].NomineeCreatedAt)
		}
		return t[i].NomineeID.String() < t[j].NomineeID.String()
	})
}

// Repository defines the interface for vote persistence
type Repository interface {
	// Create inserts a vote; ErrDuplicatePayment if the payment already has one
	Create(ctx context.Context, v *Vote) error

	// GetByPaymentID retrieves the vote materialized for a payment
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*Vote, error)

	// CountByNominee counts votes for a nominee
	CountByNominee(ctx context.Context, nomineeID uuid.UUID) (int64, error)

	// Rank aggregates votes per nominee for an event, zero-vote nominees included
	Rank(ctx context.Context, eventID uuid.UUID) ([]Tally, error)

	// ListByVoter lists a voter's votes with nominee, position and event names, newest first
	ListByVoter(ctx context.Context, voterID uuid.UUID, limit, offset int) ([]HistoryEntry, error)
}
