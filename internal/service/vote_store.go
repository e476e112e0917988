package service

import (
	"context"
	"fmt"

	"github.com/cassiomorais/awards/internal/domain/vote"
	"github.com/cassiomorais/awards/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// VoteStore is the append-only vote ledger. Only the settlement engine records
// votes; everything else reads projections.
type VoteStore struct {
	repo    vote.Repository
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewVoteStore(repo vote.Repository, metrics *observability.Metrics, logger zerolog.Logger) *VoteStore {
	return &VoteStore{
		repo:    repo,
		metrics: metrics,
		logger:  logger.With().Str("component", "vote_store").Logger(),
	}
}

// Record materializes the vote for a settled payment. It returns
// ErrDuplicatePayment when the payment already has a vote and
// ErrPaymentNotSettled when the payment is not a success.
func (s *VoteStore) Record(ctx context.Context, in vote.Input) (*vote.Vote, error) {
	v := vote.New(in)
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}
	s.metrics.RecordVote()
	s.logger.Info().
		Str("payment_id", in.PaymentID.String()).
		Str("nominee_id", in.NomineeID.String()).
		Msg("vote recorded")
	return v, nil
}

// ForPayment returns the vote materialized for a payment.
func (s *VoteStore) ForPayment(ctx context.Context, paymentID uuid.UUID) (*vote.Vote, error) {
	return s.repo.GetByPaymentID(ctx, paymentID)
}

func (s *VoteStore) CountFor(ctx context.Context, nomineeID uuid.UUID) (int64, error) {
	n, err := s.repo.CountByNominee(ctx, nomineeID)
	if err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return n, nil
}

// Rank returns the event leaderboard: most votes first, ties to the earlier
// nominee, then nominee id.
func (s *VoteStore) Rank(ctx context.Context, eventID uuid.UUID) ([]vote.Tally, error) {
	tallies, err := s.repo.Rank(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("rank event: %w", err)
	}
	vote.SortTallies(tallies)
	return tallies, nil
}

// History lists a voter's votes with the nominee, position and event they
// went to, newest first.
func (s *VoteStore) History(ctx context.Context, voterID uuid.UUID, limit, offset int) ([]vote.HistoryEntry, error) {
	entries, err := s.repo.ListByVoter(ctx, voterID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("voter history: %w", err)
	}
	return entries, nil
}
