//go:build integration

package service_test

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/cassiomorais/awards/internal/providers"
	"github.com/cassiomorais/awards/internal/repository/postgres"
	"github.com/cassiomorais/awards/internal/service"
	"github.com/cassiomorais/awards/internal/testutil/pgtest"
	"github.com/cassiomorais/awards/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sandboxSecret = "whsec_integration"

type pgEngine struct {
	svc     *service.SettlementService
	ledger  *service.Ledger
	votes   *service.VoteStore
	sandbox *providers.MockProvider
	cat     pgtest.Catalog
}

// newPGEngine wires the settlement engine to PostgreSQL and a sandbox
// Paystack provider.
func newPGEngine(t *testing.T) *pgEngine {
	t.Helper()
	pool := pgtest.Start(t)
	cat := pgtest.Seed(t, pool)

	logger := zerolog.Nop()
	tx := postgres.NewTxManager(pool)
	ledger := service.NewLedger(postgres.NewPaymentRepository(pool), postgres.NewOutboxRepository(pool), tx, nil, logger)
	votes := service.NewVoteStore(postgres.NewVoteRepository(pool), nil, logger)

	sandbox := providers.NewMockProvider(payment.MethodPaystack,
		providers.WithLatency(0), providers.WithWebhookSecret(sandboxSecret))
	factory := providers.NewFactory()
	factory.Register(sandbox)

	cfg := service.DefaultSettlementConfig()
	cfg.Verify = retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	svc := service.NewSettlementService(ledger, votes, postgres.NewCatalogRepository(pool), factory, tx, cfg, nil, logger)
	return &pgEngine{svc: svc, ledger: ledger, votes: votes, sandbox: sandbox, cat: cat}
}

// paidVote initiates a vote and has the sandbox report it paid.
func (e *pgEngine) paidVote(t *testing.T) *payment.Payment {
	t.Helper()
	p, err := e.svc.InitiateVote(context.Background(), service.InitiateVoteRequest{
		VoterID:    e.cat.VoterID,
		NomineeID:  e.cat.Nominees[0],
		EventID:    e.cat.EventID,
		PositionID: e.cat.PositionID,
		Amount:     pgtest.VotePrice,
		Method:     string(payment.MethodPaystack),
		Email:      "voter@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, payment.StatePendingConfirmation, p.State())
	e.sandbox.Settle(p.Reference, true)
	return p
}

func (e *pgEngine) successWebhook(t *testing.T, reference string) (service.WebhookResult, error) {
	t.Helper()
	body, err := json.Marshal(map[string]string{"event": "charge.success", "reference": reference})
	require.NoError(t, err)
	return e.svc.HandleWebhook(context.Background(), payment.MethodPaystack, body,
		providers.Sign(sha256.New, sandboxSecret, body))
}

func (e *pgEngine) assertOneVote(t *testing.T, p *payment.Payment) {
	t.Helper()
	ctx := context.Background()

	got, err := e.ledger.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, got.Status)

	v, err := e.votes.ForPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, e.cat.Nominees[0], v.NomineeID)

	n, err := e.votes.CountFor(ctx, e.cat.Nominees[0])
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSettlement_RepeatedWebhookDeliveryOnPostgres(t *testing.T) {
	e := newPGEngine(t)
	p := e.paidVote(t)

	results := make([]service.WebhookResult, 0, 3)
	for i := 0; i < 3; i++ {
		res, err := e.successWebhook(t, p.Reference)
		require.NoError(t, err, "delivery %d", i+1)
		results = append(results, res)
	}

	assert.Equal(t, []service.WebhookResult{
		service.WebhookConfirmed, service.WebhookDuplicate, service.WebhookDuplicate,
	}, results)
	e.assertOneVote(t, p)
}

func TestSettlement_RepeatedVerifyOnPostgres(t *testing.T) {
	e := newPGEngine(t)
	p := e.paidVote(t)

	for i := 0; i < 3; i++ {
		outcome, err := e.svc.Verify(context.Background(), p.Reference)
		require.NoError(t, err, "verify %d", i+1)
		assert.Equal(t, service.OutcomeConfirmed, outcome)
	}
	e.assertOneVote(t, p)
}

func TestSettlement_ConcurrentConfirmationsOnPostgres(t *testing.T) {
	e := newPGEngine(t)
	p := e.paidVote(t)

	const callers = 4
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []service.WebhookResult
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			body, _ := json.Marshal(map[string]string{"event": "charge.success", "reference": p.Reference})
			res, err := e.svc.HandleWebhook(context.Background(), payment.MethodPaystack, body,
				providers.Sign(sha256.New, sandboxSecret, body))
			mu.Lock()
			results = append(results, res)
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	confirmed := 0
	for _, res := range results {
		if res == service.WebhookConfirmed {
			confirmed++
		} else {
			assert.Equal(t, service.WebhookDuplicate, res)
		}
	}
	assert.Equal(t, 1, confirmed)
	e.assertOneVote(t, p)
}

func TestSettlement_RepairOrphanOnPostgres(t *testing.T) {
	e := newPGEngine(t)
	p := e.paidVote(t)

	// Settle in the ledger only, leaving the vote missing.
	_, changed, err := e.ledger.MarkSuccess(context.Background(), p.Reference)
	require.NoError(t, err)
	require.True(t, changed)

	orphans, err := e.ledger.Orphans(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, orphans, 1)

	require.NoError(t, e.svc.RepairOrphan(context.Background(), p.Reference))
	require.NoError(t, e.svc.RepairOrphan(context.Background(), p.Reference))
	e.assertOneVote(t, p)
}
