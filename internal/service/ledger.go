package service

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/outbox"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/cassiomorais/awards/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Ledger is the sole writer of payment records. Every transition is a
// conditional update, so concurrent callers settle a reference exactly once.
type Ledger struct {
	repo      payment.Repository
	outbox    outbox.Repository
	txManager TransactionManager
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewLedger(
	repo payment.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Ledger {
	return &Ledger{
		repo:      repo,
		outbox:    outboxRepo,
		txManager: txManager,
		metrics:   metrics,
		logger:    logger.With().Str("component", "ledger").Logger(),
	}
}

// CreatePendingInput describes a vote purchase about to be initiated.
type CreatePendingInput struct {
	VoterID  uuid.UUID
	Amount   payment.Amount
	Method   payment.Method
	Metadata payment.Metadata
	Payer    payment.PayerContact
}

// CreatePending persists a new pending payment under a fresh reference.
// Nothing is written when validation fails.
func (l *Ledger) CreatePending(ctx context.Context, in CreatePendingInput) (*payment.Payment, error) {
	p, err := payment.NewPayment(in.VoterID, in.Amount, in.Method, in.Metadata, in.Payer)
	if err != nil {
		return nil, err
	}

	err = l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := l.repo.Create(txCtx, p); err != nil {
			return err
		}
		return l.repo.AddEvent(txCtx, payment.NewEvent(p.ID, payment.EventCreated, map[string]any{
			"amount":   p.Amount.ValueMinor,
			"currency": p.Amount.Currency,
			"method":   string(p.Method),
		}))
	})
	if err != nil {
		return nil, fmt.Errorf("create pending payment: %w", err)
	}

	l.metrics.RecordPayment(string(p.Method), string(p.Status))
	return p, nil
}

// MarkSuccess settles reference as success. It reports whether this call made
// the change; an already-successful record is returned unchanged and a failed
// one yields ErrInvalidTransition.
func (l *Ledger) MarkSuccess(ctx context.Context, reference string) (*payment.Payment, bool, error) {
	return l.settle(ctx, reference, payment.StatusSuccess, nil)
}

// MarkFailed settles reference as failed with the same idempotency rules as
// MarkSuccess.
func (l *Ledger) MarkFailed(ctx context.Context, reference, reason string) (*payment.Payment, bool, error) {
	return l.settle(ctx, reference, payment.StatusFailed, &reason)
}

func (l *Ledger) settle(ctx context.Context, reference string, status payment.Status, reason *string) (*payment.Payment, bool, error) {
	var (
		p       *payment.Payment
		changed bool
	)
	err := l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		changed, err = l.repo.Settle(txCtx, reference, status, reason)
		if err != nil {
			return err
		}
		p, err = l.repo.GetByReference(txCtx, reference)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		eventType := payment.EventConfirmed
		data := map[string]any{"state": string(p.State())}
		if status == payment.StatusFailed {
			eventType = payment.EventRejected
			if reason != nil {
				data["reason"] = *reason
			}
		}
		if err := l.repo.AddEvent(txCtx, payment.NewEvent(p.ID, eventType, data)); err != nil {
			return err
		}
		return l.outbox.Insert(txCtx, outbox.ForPayment(p, eventType))
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		l.metrics.RecordSettlement(string(p.Method), string(p.Status), p.CreatedAt)
		observability.WithPayment(l.logger, p.ID.String(), p.Reference, string(p.Method)).Info().
			Str("state", string(p.State())).
			Msg("payment settled")
		return p, true, nil
	}

	if p.Status != status {
		return p, false, domainErrors.NewDomainError(
			"invalid_transition",
			fmt.Sprintf("payment %s is %s, cannot become %s", reference, p.Status, status),
			domainErrors.ErrInvalidTransition,
		)
	}
	return p, false, nil
}

// MarkInitiated moves an INITIATED payment to PENDING_CONFIRMATION.
func (l *Ledger) MarkInitiated(ctx context.Context, id uuid.UUID, providerRef, redirectURL *string) (*payment.Payment, error) {
	var p *payment.Payment
	err := l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := l.repo.MarkInitiated(txCtx, id, providerRef, redirectURL); err != nil {
			return err
		}
		var err error
		p, err = l.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		data := map[string]any{"attempt": p.InitiationAttempts}
		if providerRef != nil {
			data["provider_reference"] = *providerRef
		}
		if err := l.repo.AddEvent(txCtx, payment.NewEvent(p.ID, payment.EventInitiated, data)); err != nil {
			return err
		}
		return l.outbox.Insert(txCtx, outbox.ForPayment(p, payment.EventInitiated))
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// RecordInitiationFailure keeps the payment INITIATED and notes why.
func (l *Ledger) RecordInitiationFailure(ctx context.Context, p *payment.Payment, reason string) error {
	err := l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := l.repo.RecordInitiationFailure(txCtx, p.ID, reason); err != nil {
			return err
		}
		return l.repo.AddEvent(txCtx, payment.NewEvent(p.ID, payment.EventInitiationFailed, map[string]any{
			"reason": reason,
		}))
	})
	if err != nil {
		return err
	}
	l.metrics.RecordInitiationRetry(string(p.Method))
	return nil
}

// NoteVote records on the audit trail that a payment produced its vote.
func (l *Ledger) NoteVote(ctx context.Context, p *payment.Payment, voteID uuid.UUID) error {
	if err := l.repo.AddEvent(ctx, payment.NewEvent(p.ID, payment.EventVoteMaterialized, map[string]any{
		"vote_id":    voteID.String(),
		"nominee_id": p.Metadata.NomineeID.String(),
	})); err != nil {
		return err
	}
	return l.outbox.Insert(ctx, outbox.ForPayment(p, payment.EventVoteMaterialized))
}

// RecordAnomaly writes a conflicting transition to the audit trail. It never
// changes the ledger.
func (l *Ledger) RecordAnomaly(ctx context.Context, p *payment.Payment, attempted payment.Status, kind, reason string) {
	observability.WithPayment(l.logger, p.ID.String(), p.Reference, string(p.Method)).Warn().
		Bool("anomaly", true).
		Str("kind", kind).
		Str("current_status", string(p.Status)).
		Str("attempted_status", string(attempted)).
		Msg(reason)
	l.metrics.RecordAnomaly(kind)

	err := l.repo.AddEvent(ctx, payment.NewEvent(p.ID, payment.EventSettlementAnomaly, map[string]any{
		"kind":             kind,
		"current_status":   string(p.Status),
		"attempted_status": string(attempted),
		"reason":           reason,
	}))
	if err != nil {
		l.logger.Error().Err(err).Str("reference", p.Reference).Msg("failed to record anomaly")
	}
}

// Find retrieves a payment by its transaction reference.
func (l *Ledger) Find(ctx context.Context, reference string) (*payment.Payment, error) {
	return l.repo.GetByReference(ctx, reference)
}

// FindByProviderReference falls back to our own reference when the provider
// reference is unknown.
func (l *Ledger) FindByProviderReference(ctx context.Context, providerRef string) (*payment.Payment, error) {
	p, err := l.repo.GetByProviderReference(ctx, providerRef)
	if errors.Is(err, domainErrors.ErrPaymentNotFound) {
		return l.repo.GetByReference(ctx, providerRef)
	}
	return p, err
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return l.repo.GetByID(ctx, id)
}

// History returns the audit trail of a payment.
func (l *Ledger) History(ctx context.Context, id uuid.UUID) ([]*payment.Event, error) {
	return l.repo.GetEvents(ctx, id)
}

// Anomalies lists recorded settlement anomalies, newest first.
func (l *Ledger) Anomalies(ctx context.Context, limit, offset int) ([]*payment.Event, error) {
	return l.repo.ListEvents(ctx, payment.EventSettlementAnomaly, limit, offset)
}

// Pending lists pending payments for reconciliation.
func (l *Ledger) Pending(ctx context.Context, filter payment.PendingFilter) ([]*payment.Payment, error) {
	return l.repo.ListPending(ctx, filter)
}

// Orphans lists successful payments that never produced a vote.
func (l *Ledger) Orphans(ctx context.Context, limit int) ([]*payment.Payment, error) {
	return l.repo.ListSettledWithoutVote(ctx, limit)
}
