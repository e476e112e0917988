package service

import (
	"context"
	"time"

	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/cassiomorais/awards/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// Locker takes short-lived exclusive locks. ok is false when someone else
// holds key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

type ReconcilerConfig struct {
	BatchSize int
	// MinAge skips payments younger than this so fresh checkouts are left to
	// their webhook.
	MinAge  time.Duration
	LockTTL time.Duration
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{BatchSize: 100, MinAge: 30 * time.Second, LockTTL: 30 * time.Second}
}

// ReconcileReport counts what one pass did.
type ReconcileReport struct {
	Scanned   int
	Confirmed int
	Rejected  int
	Expired   int
	Repaired  int
	Skipped   int
	Errors    int
}

// Reconciler settles payments that no webhook settled: it polls the provider
// for pending ones, rejects those past their horizon and repairs successful
// payments that lost their vote.
type Reconciler struct {
	ledger     *Ledger
	settlement *SettlementService
	locker     Locker
	cfg        ReconcilerConfig
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// NewReconciler builds a Reconciler. locker may be nil on a single instance.
func NewReconciler(
	ledger *Ledger,
	settlement *SettlementService,
	locker Locker,
	cfg ReconcilerConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Reconciler{
		ledger:     ledger,
		settlement: settlement,
		locker:     locker,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger.With().Str("component", "reconciler").Logger(),
	}
}

// Run reconciles every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("reconcile pass failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce makes one reconciliation pass.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	before := r.settlement.cfg.now().Add(-r.cfg.MinAge)
	pending, err := r.ledger.Pending(ctx, payment.PendingFilter{CreatedBefore: &before, Limit: r.cfg.BatchSize})
	if err != nil {
		return report, err
	}
	byMethod := make(map[string]int)
	for _, p := range pending {
		byMethod[string(p.Method)]++
	}
	for _, m := range payment.Methods {
		r.metrics.SetPending(string(m), byMethod[string(m)])
	}

	for _, p := range pending {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Scanned++
		r.reconcilePending(ctx, p, &report)
	}

	orphans, err := r.ledger.Orphans(ctx, r.cfg.BatchSize)
	if err != nil {
		return report, err
	}
	for _, p := range orphans {
		report.Scanned++
		r.withLock(ctx, p.Reference, &report, func() {
			if err := r.settlement.RepairOrphan(ctx, p.Reference); err != nil {
				report.Errors++
				r.logger.Error().Err(err).Str("reference", p.Reference).Msg("orphan repair failed")
				return
			}
			report.Repaired++
		})
	}

	r.metrics.RecordReconcile("confirmed", report.Confirmed)
	r.metrics.RecordReconcile("rejected", report.Rejected)
	r.metrics.RecordReconcile("expired", report.Expired)
	r.metrics.RecordReconcile("repaired", report.Repaired)
	r.metrics.RecordReconcile("error", report.Errors)

	if report.Scanned > 0 {
		r.logger.Info().
			Int("scanned", report.Scanned).
			Int("confirmed", report.Confirmed).
			Int("rejected", report.Rejected).
			Int("expired", report.Expired).
			Int("repaired", report.Repaired).
			Int("errors", report.Errors).
			Msg("reconcile pass complete")
	}
	return report, nil
}

func (r *Reconciler) reconcilePending(ctx context.Context, p *payment.Payment, report *ReconcileReport) {
	r.withLock(ctx, p.Reference, report, func() {
		log := observability.WithPayment(r.logger, p.ID.String(), p.Reference, string(p.Method))

		if r.settlement.Expired(p) {
			outcome, err := r.settlement.Expire(ctx, p.Reference)
			if err != nil {
				report.Errors++
				log.Error().Err(err).Msg("expiry failed")
				return
			}
			if outcome == OutcomeConfirmed {
				report.Confirmed++
			} else {
				report.Expired++
			}
			return
		}

		// Only the payer can push an INITIATED payment forward.
		if p.State() != payment.StatePendingConfirmation {
			report.Skipped++
			return
		}

		outcome, err := r.settlement.Verify(ctx, p.Reference)
		if err != nil {
			report.Errors++
			log.Warn().Err(err).Msg("verification during reconcile failed")
			return
		}
		switch outcome {
		case OutcomeConfirmed:
			report.Confirmed++
		case OutcomeRejected:
			report.Rejected++
		default:
			report.Skipped++
		}
	})
}

func (r *Reconciler) withLock(ctx context.Context, reference string, report *ReconcileReport, fn func()) {
	if r.locker == nil {
		fn()
		return
	}
	release, ok, err := r.locker.TryLock(ctx, "settle:"+reference, r.cfg.LockTTL)
	if err != nil {
		// The ledger's conditional updates keep this safe without the lock.
		r.logger.Warn().Err(err).Str("reference", reference).Msg("lock unavailable, reconciling unlocked")
		fn()
		return
	}
	if !ok {
		report.Skipped++
		return
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.logger.Debug().Err(err).Str("reference", reference).Msg("lock release failed")
		}
	}()
	fn()
}
