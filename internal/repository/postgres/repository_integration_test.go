//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/outbox"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/cassiomorais/awards/internal/domain/vote"
	"github.com/cassiomorais/awards/internal/repository/postgres"
	"github.com/cassiomorais/awards/internal/testutil/pgtest"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupDB starts a database seeded with one open event and two nominees.
func setupDB(t *testing.T) (*pgxpool.Pool, pgtest.Catalog) {
	t.Helper()
	pool := pgtest.Start(t)
	return pool, pgtest.Seed(t, pool)
}

func newPayment(t *testing.T, rows pgtest.Catalog, nominee uuid.UUID) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(
		rows.VoterID,
		payment.Amount{ValueMinor: 100, Currency: "GHS"},
		payment.MethodPaystack,
		payment.Metadata{NomineeID: nominee, EventID: rows.EventID, PositionID: rows.PositionID},
		payment.PayerContact{Email: "voter@example.com"},
	)
	require.NoError(t, err)
	return p
}

func TestPaymentRepository_Lifecycle(t *testing.T) {
	pool, rows := setupDB(t)
	ctx := context.Background()
	repo := postgres.NewPaymentRepository(pool)

	p := newPayment(t, rows, rows.Nominees[0])
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.GetByReference(ctx, p.Reference)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Amount.ValueMinor)
	assert.Equal(t, payment.StateInitiated, got.State())

	providerRef, redirect := "ps_123", "https://checkout.example/ps_123"
	require.NoError(t, repo.MarkInitiated(ctx, p.ID, &providerRef, &redirect))

	got, err = repo.GetByProviderReference(ctx, providerRef)
	require.NoError(t, err)
	assert.Equal(t, payment.StatePendingConfirmation, got.State())
	assert.Equal(t, 1, got.InitiationAttempts)

	changed, err := repo.Settle(ctx, p.Reference, payment.StatusSuccess, nil)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Settle(ctx, p.Reference, payment.StatusFailed, nil)
	require.NoError(t, err)
	assert.False(t, changed, "a settled payment never changes again")

	got, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, got.Status)
	assert.NotNil(t, got.SettledAt)

	assert.ErrorIs(t, repo.MarkInitiated(ctx, p.ID, nil, nil), domainErrors.ErrNotInitiable)

	_, err = repo.Settle(ctx, "AWD-missing", payment.StatusSuccess, nil)
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
}

func TestPaymentRepository_ConcurrentSettleHasOneWinner(t *testing.T) {
	pool, rows := setupDB(t)
	ctx := context.Background()
	repo := postgres.NewPaymentRepository(pool)

	p := newPayment(t, rows, rows.Nominees[0])
	require.NoError(t, repo.Create(ctx, p))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := payment.StatusSuccess
			if i%2 == 1 {
				status = payment.StatusFailed
			}
			changed, err := repo.Settle(ctx, p.Reference, status, nil)
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestPaymentRepository_PendingAndOrphans(t *testing.T) {
	pool, rows := setupDB(t)
	ctx := context.Background()
	repo := postgres.NewPaymentRepository(pool)

	pending := newPayment(t, rows, rows.Nominees[0])
	orphan := newPayment(t, rows, rows.Nominees[0])
	require.NoError(t, repo.Create(ctx, pending))
	require.NoError(t, repo.Create(ctx, orphan))
	_, err := repo.Settle(ctx, orphan.Reference, payment.StatusSuccess, nil)
	require.NoError(t, err)

	before := time.Now().Add(time.Minute)
	list, err := repo.ListPending(ctx, payment.PendingFilter{CreatedBefore: &before})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pending.ID, list[0].ID)

	orphans, err := repo.ListSettledWithoutVote(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, orphan.ID, orphans[0].ID)
}

func TestVoteRepository_OneVotePerSettledPayment(t *testing.T) {
	pool, rows := setupDB(t)
	ctx := context.Background()
	payments := postgres.NewPaymentRepository(pool)
	votes := postgres.NewVoteRepository(pool)

	p := newPayment(t, rows, rows.Nominees[1])
	require.NoError(t, payments.Create(ctx, p))

	in := vote.Input{VoterID: rows.VoterID, NomineeID: rows.Nominees[1], EventID: rows.EventID, PositionID: rows.PositionID, PaymentID: p.ID}
	assert.ErrorIs(t, votes.Create(ctx, vote.New(in)), domainErrors.ErrPaymentNotSettled)

	_, err := payments.Settle(ctx, p.Reference, payment.StatusSuccess, nil)
	require.NoError(t, err)
	require.NoError(t, votes.Create(ctx, vote.New(in)))
	assert.ErrorIs(t, votes.Create(ctx, vote.New(in)), domainErrors.ErrDuplicatePayment)

	count, err := votes.CountByNominee(ctx, rows.Nominees[1])
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	tallies, err := votes.Rank(ctx, rows.EventID)
	require.NoError(t, err)
	require.Len(t, tallies, 2)
	assert.Equal(t, rows.Nominees[1], tallies[0].NomineeID)
	assert.Equal(t, int64(1), tallies[0].Votes)
	assert.Equal(t, int64(0), tallies[1].Votes, "nominees without votes are ranked too")
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	pool, rows := setupDB(t)
	ctx := context.Background()
	repo := postgres.NewPaymentRepository(pool)
	tx := postgres.NewTxManager(pool)

	p := newPayment(t, rows, rows.Nominees[0])
	boom := errors.New("boom")
	err := tx.WithTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, repo.Create(txCtx, p))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.GetByID(ctx, p.ID)
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
}

func TestOutboxRepository_ClaimPublishPurge(t *testing.T) {
	pool, _ := setupDB(t)
	ctx := context.Background()
	repo := postgres.NewOutboxRepository(pool)
	tx := postgres.NewTxManager(pool)

	first := outbox.NewEntry(outbox.AggregatePayment, uuid.New(), payment.EventConfirmed, map[string]any{"reference": "AWD-1"})
	second := outbox.NewEntry(outbox.AggregatePayment, uuid.New(), payment.EventRejected, map[string]any{"reference": "AWD-2"})
	second.MaxRetries = 1
	require.NoError(t, repo.Insert(ctx, first))
	require.NoError(t, repo.Insert(ctx, second))

	require.NoError(t, tx.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := repo.ClaimPending(txCtx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "AWD-1", entries[0].Payload["reference"])
		require.NoError(t, repo.MarkPublished(txCtx, first.ID))
		return repo.MarkFailed(txCtx, second.ID, "stream down")
	}))

	require.NoError(t, tx.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := repo.ClaimPending(txCtx, 10)
		require.NoError(t, err)
		assert.Empty(t, entries, "published and exhausted entries are not claimed")
		return nil
	}))

	purged, err := repo.PurgePublished(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestIdempotencyRepository(t *testing.T) {
	pool, _ := setupDB(t)
	ctx := context.Background()
	repo := postgres.NewIdempotencyRepository(pool)
	now := time.Now()

	require.NoError(t, repo.Set(ctx, &postgres.IdempotencyEntry{
		Key: "u:live", RequestHash: "h1", ResponseBody: `{"ok":true}`, ResponseStatus: 201,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, repo.Set(ctx, &postgres.IdempotencyEntry{
		Key: "u:stale", RequestHash: "h2", ResponseBody: `{}`, ResponseStatus: 201,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))

	got, err := repo.Get(ctx, "u:live")
	require.NoError(t, err)
	assert.Equal(t, 201, got.ResponseStatus)
	assert.Equal(t, "h1", got.RequestHash)

	n, err := repo.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCatalogRepository_GetUserRoles(t *testing.T) {
	pool, rows := setupDB(t)
	ctx := context.Background()
	repo := postgres.NewCatalogRepository(pool)

	user, err := repo.GetUser(ctx, rows.VoterID)
	require.NoError(t, err)
	assert.True(t, user.HasRole("admin"))

	event, err := repo.GetEvent(ctx, rows.EventID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), event.VotePrice)

	_, err = repo.GetNominee(ctx, uuid.New())
	assert.ErrorIs(t, err, domainErrors.ErrNomineeNotFound)
}

func TestVoteRepository_DuplicateInsideTransactionStillCommits(t *testing.T) {
	pool, rows := setupDB(t)
	ctx := context.Background()
	payments := postgres.NewPaymentRepository(pool)
	votes := postgres.NewVoteRepository(pool)
	tx := postgres.NewTxManager(pool)

	p := newPayment(t, rows, rows.Nominees[0])
	require.NoError(t, payments.Create(ctx, p))
	_, err := payments.Settle(ctx, p.Reference, payment.StatusSuccess, nil)
	require.NoError(t, err)

	in := vote.Input{VoterID: rows.VoterID, NomineeID: rows.Nominees[0], EventID: rows.EventID, PositionID: rows.PositionID, PaymentID: p.ID}
	require.NoError(t, votes.Create(ctx, vote.New(in)))

	err = tx.WithTransaction(ctx, func(txCtx context.Context) error {
		changed, err := payments.Settle(txCtx, p.Reference, payment.StatusSuccess, nil)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.ErrorIs(t, votes.Create(txCtx, vote.New(in)), domainErrors.ErrDuplicatePayment)
		// The transaction must still be usable after the duplicate.
		_, err = payments.GetByID(txCtx, p.ID)
		return err
	})
	require.NoError(t, err)

	count, err := votes.CountByNominee(ctx, rows.Nominees[0])
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestVoteRepository_ListByVoterJoinsNames(t *testing.T) {
	pool, rows := setupDB(t)
	ctx := context.Background()
	payments := postgres.NewPaymentRepository(pool)
	votes := postgres.NewVoteRepository(pool)

	for _, nominee := range rows.Nominees {
		p := newPayment(t, rows, nominee)
		require.NoError(t, payments.Create(ctx, p))
		_, err := payments.Settle(ctx, p.Reference, payment.StatusSuccess, nil)
		require.NoError(t, err)
		in := vote.Input{VoterID: rows.VoterID, NomineeID: nominee, EventID: rows.EventID, PositionID: rows.PositionID, PaymentID: p.ID}
		require.NoError(t, votes.Create(ctx, vote.New(in)))
	}

	history, err := votes.ListByVoter(ctx, rows.VoterID, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, h := range history {
		assert.Equal(t, "Awards", h.EventName)
		assert.Equal(t, "Best Artist", h.PositionName)
		assert.NotEmpty(t, h.NomineeName)
	}
	assert.Equal(t, rows.Nominees[1], history[0].NomineeID, "newest first")

	page, err := votes.ListByVoter(ctx, rows.VoterID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, rows.Nominees[0], page[0].NomineeID)
}
