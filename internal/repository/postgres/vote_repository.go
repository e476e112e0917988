package postgres

import (
	"context"
	"fmt"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/vote"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VoteRepository implements vote.Repository using PostgreSQL.
type VoteRepository struct {
	pool *pgxpool.Pool
}

func NewVoteRepository(pool *pgxpool.Pool) *VoteRepository {
	return &VoteRepository{pool: pool}
}

func (r *VoteRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Create inserts a vote only when its payment is settled as success. The
// UNIQUE constraint on payment_id enforces one vote per payment. A conflict
// reports ErrDuplicatePayment without aborting the enclosing transaction.
func (r *VoteRepository) Create(ctx context.Context, v *vote.Vote) error {
	tag, err := r.db(ctx).Exec(ctx,
		`INSERT INTO votes (id, voter_id, nominee_id, event_id, position_id, payment_id, created_at)
		 SELECT $1, $2, $3, $4, $5, $6, $7
		 WHERE EXISTS (SELECT 1 FROM payments WHERE id = $6 AND status = 'success')
		 ON CONFLICT (payment_id) DO NOTHING`,
		v.ID, v.VoterID, v.NomineeID, v.EventID, v.PositionID, v.PaymentID, v.CreatedAt,
	)
	if err != nil {
		switch code, _ := pgErrorCode(err); code {
		case codeUniqueViolation:
			return domainErrors.ErrDuplicatePayment
		case codeForeignKeyViolation:
			return domainErrors.ErrNomineeNotFound
		}
		return fmt.Errorf("insert vote: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var paymentExists, voteExists bool
	if err := r.db(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1),
		        EXISTS (SELECT 1 FROM votes WHERE payment_id = $1)`, v.PaymentID,
	).Scan(&paymentExists, &voteExists); err != nil {
		return fmt.Errorf("check payment: %w", err)
	}
	switch {
	case voteExists:
		return domainErrors.ErrDuplicatePayment
	case !paymentExists:
		return domainErrors.ErrPaymentNotFound
	default:
		return domainErrors.ErrPaymentNotSettled
	}
}

func (r *VoteRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*vote.Vote, error) {
	v := &vote.Vote{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, voter_id, nominee_id, event_id, position_id, payment_id, created_at
		 FROM votes WHERE payment_id = $1`, paymentID,
	).Scan(&v.ID, &v.VoterID, &v.NomineeID, &v.EventID, &v.PositionID, &v.PaymentID, &v.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domainErrors.NewDomainError("vote_not_found", "no vote for payment", domainErrors.ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("get vote: %w", err)
	}
	return v, nil
}

func (r *VoteRepository) CountByNominee(ctx context.Context, nomineeID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM votes WHERE nominee_id = $1`, nomineeID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return count, nil
}

// Rank aggregates the whole event leaderboard in one query.
func (r *VoteRepository) Rank(ctx context.Context, eventID uuid.UUID) ([]vote.Tally, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT n.id, n.position_id, n.name, n.created_at, COUNT(v.id) AS votes
		 FROM nominees n
		 LEFT JOIN votes v ON v.nominee_id = n.id
		 WHERE n.event_id = $1
		 GROUP BY n.id, n.position_id, n.name, n.created_at
		 ORDER BY votes DESC, n.created_at ASC, n.id ASC`, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("rank nominees: %w", err)
	}
	defer rows.Close()

	var tallies []vote.Tally
	for rows.Next() {
		var t vote.Tally
		if err := rows.Scan(&t.NomineeID, &t.PositionID, &t.Name, &t.NomineeCreatedAt, &t.Votes); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		tallies = append(tallies, t)
	}
	return tallies, rows.Err()
}

func (r *VoteRepository) ListByVoter(ctx context.Context, voterID uuid.UUID, limit, offset int) ([]vote.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT v.id, v.voter_id, v.nominee_id, v.event_id, v.position_id, v.payment_id, v.created_at,
		        n.name, p.name, e.name
		 FROM votes v
		 JOIN nominees n ON n.id = v.nominee_id
		 JOIN positions p ON p.id = v.position_id
		 JOIN events e ON e.id = v.event_id
		 WHERE v.voter_id = $1
		 ORDER BY v.created_at DESC, v.id
		 LIMIT $2 OFFSET $3`, voterID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var entries []vote.HistoryEntry
	for rows.Next() {
		var h vote.HistoryEntry
		if err := rows.Scan(&h.ID, &h.VoterID, &h.NomineeID, &h.EventID, &h.PositionID, &h.PaymentID, &h.CreatedAt,
			&h.NomineeName, &h.PositionName, &h.EventName); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}
