package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/awards/internal/domain/catalog"
	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/cassiomorais/awards/internal/domain/vote"
	"github.com/cassiomorais/awards/internal/infrastructure/observability"
	"github.com/cassiomorais/awards/internal/providers"
	"github.com/cassiomorais/awards/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Outcome is the answer to "has this payment settled".
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomePending   Outcome = "pending"
	OutcomeRejected  Outcome = "rejected"
)

func outcomeOf(p *payment.Payment) Outcome {
	switch p.Status {
	case payment.StatusSuccess:
		return OutcomeConfirmed
	case payment.StatusFailed:
		return OutcomeRejected
	}
	return OutcomePending
}

// WebhookResult says what a provider notification did.
type WebhookResult string

const (
	WebhookConfirmed  WebhookResult = "confirmed"
	WebhookRejected   WebhookResult = "rejected"
	WebhookDuplicate  WebhookResult = "duplicate"
	WebhookIgnored    WebhookResult = "ignored"
	WebhookUnverified WebhookResult = "unverified"
	WebhookAnomaly    WebhookResult = "anomaly"
)

// Anomaly kinds recorded on the audit trail.
const (
	AnomalyLateSuccess     = "late_success"
	AnomalyLateFailure     = "late_failure"
	AnomalyVerifyMismatch  = "verify_mismatch"
	AnomalyOrphanedSuccess = "orphaned_success"
)

// ProviderRegistry hands out providers by payment method.
type ProviderRegistry interface {
	Get(method payment.Method) (providers.Provider, error)
	Webhook(method payment.Method) (providers.WebhookProvider, error)
}

type SettlementConfig struct {
	// PushHorizon bounds how long a push-to-phone payment may stay pending.
	PushHorizon time.Duration
	// RedirectHorizon bounds checkout payments.
	RedirectHorizon time.Duration
	// Poll paces AwaitConfirmation. MaxAttempts is normally zero so polling
	// runs until the horizon.
	Poll retry.Config
	// Verify retries a single provider verification on transient errors.
	Verify retry.Config
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func DefaultSettlementConfig() SettlementConfig {
	return SettlementConfig{
		PushHorizon:     5 * time.Minute,
		RedirectHorizon: time.Hour,
		Poll:            retry.Config{InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second},
		Verify:          retry.Config{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second},
	}
}

// Horizon returns how long a payment of method may stay unconfirmed.
func (c SettlementConfig) Horizon(m payment.Method) time.Duration {
	if m.IsPush() {
		return c.PushHorizon
	}
	return c.RedirectHorizon
}

func (c SettlementConfig) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// SettlementService drives a vote purchase from initiation to exactly one
// vote. It is the only writer of the ledger and the vote store.
type SettlementService struct {
	ledger    *Ledger
	votes     *VoteStore
	catalog   catalog.Repository
	providers ProviderRegistry
	txManager TransactionManager
	cfg       SettlementConfig
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewSettlementService(
	ledger *Ledger,
	votes *VoteStore,
	catalogRepo catalog.Repository,
	registry ProviderRegistry,
	txManager TransactionManager,
	cfg SettlementConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *SettlementService {
	return &SettlementService{
		ledger:    ledger,
		votes:     votes,
		catalog:   catalogRepo,
		providers: registry,
		txManager: txManager,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.With().Str("component", "settlement").Logger(),
	}
}

// Config returns the settlement timing in use.
func (s *SettlementService) Config() SettlementConfig { return s.cfg }

// InitiateVote validates the vote target, records a pending payment and asks
// the provider to collect it. On a transient provider failure the returned
// payment is still INITIATED and the error wraps ErrProviderUnavailable; the
// caller may RetryInitiation with the payment id. A provider rejection settles
// the payment as failed and wraps ErrProviderRejected.
func (s *SettlementService) InitiateVote(ctx context.Context, req InitiateVoteRequest) (*payment.Payment, error) {
	ctx, span := observability.StartSpan(ctx, "settlement.initiate_vote",
		attribute.String("payment.method", req.Method),
		attribute.String("nominee.id", req.NomineeID.String()),
	)
	defer span.End()

	method, err := payment.ParseMethod(req.Method)
	if err != nil {
		return nil, domainErrors.NewValidationError("payment_method", err.Error())
	}
	if req.Amount <= 0 {
		return nil, domainErrors.NewValidationError("amount", "must be greater than 0")
	}

	target, err := s.resolveTarget(ctx, req.EventID, req.PositionID, req.NomineeID)
	if err != nil {
		return nil, err
	}
	if err := target.Event.EnsureOpen(s.cfg.now()); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = target.Event.Currency
	}
	if currency != target.Event.Currency {
		return nil, domainErrors.NewValidationError("currency", "must be "+target.Event.Currency)
	}
	if req.Amount != target.Event.VotePrice {
		return nil, domainErrors.NewValidationError("amount",
			fmt.Sprintf("must equal the vote price %s", payment.Amount{ValueMinor: target.Event.VotePrice, Currency: currency}))
	}

	provider, err := s.providers.Get(method)
	if err != nil {
		return nil, err
	}

	p, err := s.ledger.CreatePending(ctx, CreatePendingInput{
		VoterID: req.VoterID,
		Amount:  payment.Amount{ValueMinor: req.Amount, Currency: currency},
		Method:  method,
		Metadata: payment.Metadata{
			NomineeID:  target.Nominee.ID,
			EventID:    target.Event.ID,
			PositionID: target.Position.ID,
		},
		Payer: payment.PayerContact{Email: req.Email, Phone: req.Phone},
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.reference", p.Reference))

	p, err = s.initiate(ctx, provider, p, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return p, err
}

// RetryInitiation re-sends an INITIATED payment to its provider under the same
// reference. It never creates a new payment.
func (s *SettlementService) RetryInitiation(ctx context.Context, paymentID uuid.UUID) (*payment.Payment, error) {
	p, err := s.ledger.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.State() != payment.StateInitiated {
		return p, domainErrors.NewDomainError("not_initiable",
			fmt.Sprintf("payment is %s", p.State()), domainErrors.ErrNotInitiable)
	}

	target, err := s.resolveTarget(ctx, p.Metadata.EventID, p.Metadata.PositionID, p.Metadata.NomineeID)
	if err != nil {
		return p, err
	}
	if err := target.Event.EnsureOpen(s.cfg.now()); err != nil {
		return p, err
	}
	provider, err := s.providers.Get(p.Method)
	if err != nil {
		return p, err
	}
	return s.initiate(ctx, provider, p, target)
}

func (s *SettlementService) initiate(ctx context.Context, provider providers.Provider, p *payment.Payment, target *catalog.Target) (*payment.Payment, error) {
	log := observability.WithPayment(s.logger, p.ID.String(), p.Reference, string(p.Method))

	res, err := provider.Initiate(ctx, providers.InitiateRequest{
		Reference:   p.Reference,
		Amount:      p.Amount,
		Payer:       p.Payer,
		Metadata:    p.Metadata,
		Description: fmt.Sprintf("Vote for %s (%s)", target.Nominee.Name, target.Event.Name),
	})
	switch {
	case err == nil:
		initiated, err := s.ledger.MarkInitiated(ctx, p.ID, res.ProviderReference, res.RedirectURL)
		if err != nil {
			return p, fmt.Errorf("record initiation: %w", err)
		}
		log.Info().Str("state", string(initiated.State())).Msg("payment initiated")
		return initiated, nil

	case errors.Is(err, domainErrors.ErrProviderRejected):
		log.Warn().Err(err).Msg("provider rejected initiation")
		failed, _, settleErr := s.ledger.MarkFailed(ctx, p.Reference, err.Error())
		if settleErr != nil {
			return p, fmt.Errorf("record rejection: %w", settleErr)
		}
		return failed, err

	default:
		log.Warn().Err(err).Int("attempt", p.InitiationAttempts+1).Msg("initiation failed, payment stays initiated")
		if recErr := s.ledger.RecordInitiationFailure(ctx, p, err.Error()); recErr != nil {
			log.Error().Err(recErr).Msg("failed to record initiation failure")
		}
		if current, getErr := s.ledger.Get(ctx, p.ID); getErr == nil {
			p = current
		}
		if !domainErrors.IsTransient(err) {
			err = fmt.Errorf("%w: %v", domainErrors.ErrProviderUnavailable, err)
		}
		return p, err
	}
}

func (s *SettlementService) resolveTarget(ctx context.Context, eventID, positionID, nomineeID uuid.UUID) (*catalog.Target, error) {
	nominee, err := s.catalog.GetNominee(ctx, nomineeID)
	if err != nil {
		return nil, err
	}
	position, err := s.catalog.GetPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	event, err := s.catalog.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return catalog.ResolveTarget(event, position, nominee)
}

// HandleWebhook processes a provider notification. The signature is checked
// before anything else; a success notification is only trusted after the
// provider independently verifies it. Unknown references and event types are
// acknowledged without effect.
func (s *SettlementService) HandleWebhook(ctx context.Context, method payment.Method, body []byte, signature string) (WebhookResult, error) {
	result, err := s.handleWebhook(ctx, method, body, signature)
	label := string(result)
	if errors.Is(err, domainErrors.ErrInvalidSignature) {
		label = "invalid_signature"
	} else if err != nil {
		label = "error"
	}
	s.metrics.RecordWebhook(string(method), label)
	return result, err
}

func (s *SettlementService) handleWebhook(ctx context.Context, method payment.Method, body []byte, signature string) (WebhookResult, error) {
	wp, err := s.providers.Webhook(method)
	if err != nil {
		return "", err
	}
	if err := wp.ValidateSignature(body, signature); err != nil {
		s.logger.Warn().Str("method", string(method)).Msg("webhook signature rejected")
		return "", err
	}

	ev, err := wp.ParseWebhook(body)
	if err != nil {
		s.logger.Warn().Err(err).Str("method", string(method)).Msg("unreadable webhook acknowledged")
		return WebhookIgnored, nil
	}
	if ev.Kind == providers.WebhookIgnored {
		s.logger.Debug().Str("method", string(method)).Str("type", ev.Type).Msg("webhook event ignored")
		return WebhookIgnored, nil
	}

	p, err := s.lookup(ctx, ev)
	if errors.Is(err, domainErrors.ErrPaymentNotFound) {
		s.logger.Warn().
			Str("method", string(method)).
			Str("reference", ev.Reference).
			Str("provider_reference", ev.ProviderReference).
			Msg("webhook for unknown payment acknowledged")
		return WebhookIgnored, nil
	}
	if err != nil {
		return "", err
	}
	if p.Method != method {
		s.ledger.RecordAnomaly(ctx, p, p.Status, "method_mismatch",
			fmt.Sprintf("%s webhook for a %s payment", method, p.Method))
		return WebhookAnomaly, nil
	}

	if ev.Kind == providers.WebhookFailure {
		return s.webhookFailure(ctx, p, ev.Reason)
	}
	return s.webhookSuccess(ctx, p)
}

func (s *SettlementService) lookup(ctx context.Context, ev *providers.WebhookEvent) (*payment.Payment, error) {
	if ev.Reference != "" {
		p, err := s.ledger.Find(ctx, ev.Reference)
		if !errors.Is(err, domainErrors.ErrPaymentNotFound) || ev.ProviderReference == "" {
			return p, err
		}
	}
	if ev.ProviderReference != "" {
		return s.ledger.FindByProviderReference(ctx, ev.ProviderReference)
	}
	return nil, domainErrors.ErrPaymentNotFound
}

func (s *SettlementService) webhookSuccess(ctx context.Context, p *payment.Payment) (WebhookResult, error) {
	switch p.Status {
	case payment.StatusSuccess:
		// Redelivery. Materialize the vote if an earlier attempt lost it.
		if _, err := s.confirm(ctx, p.Reference); err != nil {
			return "", err
		}
		return WebhookDuplicate, nil
	case payment.StatusFailed:
		s.ledger.RecordAnomaly(ctx, p, payment.StatusSuccess, AnomalyLateSuccess,
			"success notification for a rejected payment")
		return WebhookAnomaly, nil
	}

	ok, err := s.verify(ctx, p)
	switch {
	case errors.Is(err, domainErrors.ErrProviderRejected):
		s.ledger.RecordAnomaly(ctx, p, payment.StatusSuccess, AnomalyVerifyMismatch,
			"success notification contradicted by provider verification")
		if _, err := s.reject(ctx, p, err.Error()); err != nil {
			return "", err
		}
		return WebhookRejected, nil
	case err != nil:
		return "", err
	case !ok:
		observability.WithPayment(s.logger, p.ID.String(), p.Reference, string(p.Method)).Warn().
			Msg("success notification not yet confirmed by provider")
		return WebhookUnverified, nil
	}

	confirmed, err := s.confirm(ctx, p.Reference)
	if errors.Is(err, domainErrors.ErrInvalidTransition) {
		return WebhookAnomaly, nil
	}
	if err != nil {
		return "", err
	}
	if confirmed {
		return WebhookConfirmed, nil
	}
	return WebhookDuplicate, nil
}

func (s *SettlementService) webhookFailure(ctx context.Context, p *payment.Payment, reason string) (WebhookResult, error) {
	if reason == "" {
		reason = "provider reported failure"
	}
	switch p.Status {
	case payment.StatusFailed:
		return WebhookDuplicate, nil
	case payment.StatusSuccess:
		s.ledger.RecordAnomaly(ctx, p, payment.StatusFailed, AnomalyLateFailure,
			"failure notification for a confirmed payment")
		return WebhookAnomaly, nil
	}

	changed, err := s.reject(ctx, p, reason)
	if errors.Is(err, domainErrors.ErrInvalidTransition) {
		return WebhookAnomaly, nil
	}
	if err != nil {
		return "", err
	}
	if changed {
		return WebhookRejected, nil
	}
	return WebhookDuplicate, nil
}

// Verify answers whether the payment behind reference has settled, asking the
// provider only while it is pending. A definitive provider answer settles the
// ledger.
func (s *SettlementService) Verify(ctx context.Context, reference string) (Outcome, error) {
	p, err := s.ledger.Find(ctx, reference)
	if err != nil {
		return "", err
	}
	return s.verifyPayment(ctx, p)
}

func (s *SettlementService) verifyPayment(ctx context.Context, p *payment.Payment) (Outcome, error) {
	switch p.Status {
	case payment.StatusSuccess:
		if _, err := s.confirm(ctx, p.Reference); err != nil {
			return OutcomeConfirmed, err
		}
		return OutcomeConfirmed, nil
	case payment.StatusFailed:
		return OutcomeRejected, nil
	}

	ok, err := s.verify(ctx, p)
	switch {
	case errors.Is(err, domainErrors.ErrProviderRejected):
		if _, err := s.reject(ctx, p, err.Error()); err != nil {
			return s.settledOutcome(ctx, p.Reference, err)
		}
		return OutcomeRejected, nil
	case err != nil:
		return OutcomePending, err
	case !ok:
		return OutcomePending, nil
	}

	if _, err := s.confirm(ctx, p.Reference); err != nil {
		return s.settledOutcome(ctx, p.Reference, err)
	}
	return OutcomeConfirmed, nil
}

// settledOutcome reports the ledger's answer after a transition lost a race.
func (s *SettlementService) settledOutcome(ctx context.Context, reference string, err error) (Outcome, error) {
	if !errors.Is(err, domainErrors.ErrInvalidTransition) {
		return OutcomePending, err
	}
	p, findErr := s.ledger.Find(ctx, reference)
	if findErr != nil {
		return OutcomePending, findErr
	}
	return outcomeOf(p), nil
}

// verify asks the provider, retrying transient failures with backoff.
func (s *SettlementService) verify(ctx context.Context, p *payment.Payment) (bool, error) {
	provider, err := s.providers.Get(p.Method)
	if err != nil {
		return false, err
	}
	return retry.DoWithResult(ctx, s.cfg.Verify, func() (bool, error) {
		return provider.Verify(ctx, p.VerifyReference())
	},
		retry.If(domainErrors.IsTransient),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug().Err(err).Uint("attempt", n+1).Str("reference", p.Reference).Msg("retrying verification")
		}),
	)
}

// confirm is the confirmation unit of work: settle as success and materialize
// the vote in one transaction. It reports whether this call settled the
// payment. An already-successful payment gets its vote only if missing. A
// rejected payment yields ErrInvalidTransition and an anomaly.
func (s *SettlementService) confirm(ctx context.Context, reference string) (bool, error) {
	ctx, span := observability.StartSpan(ctx, "settlement.confirm", attribute.String("payment.reference", reference))
	defer span.End()

	var (
		p       *payment.Payment
		changed bool
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		p, changed, err = s.ledger.MarkSuccess(txCtx, reference)
		if err != nil {
			return err
		}
		return s.materialize(txCtx, p, changed)
	})
	if errors.Is(err, domainErrors.ErrInvalidTransition) && p != nil {
		s.ledger.RecordAnomaly(ctx, p, payment.StatusSuccess, AnomalyLateSuccess,
			"confirmation arrived for a rejected payment")
	}
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	return changed, nil
}

func (s *SettlementService) materialize(ctx context.Context, p *payment.Payment, settledNow bool) error {
	v, err := s.votes.Record(ctx, vote.Input{
		VoterID:    p.VoterID,
		NomineeID:  p.Metadata.NomineeID,
		EventID:    p.Metadata.EventID,
		PositionID: p.Metadata.PositionID,
		PaymentID:  p.ID,
	})
	if errors.Is(err, domainErrors.ErrDuplicatePayment) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("materialize vote: %w", err)
	}
	if !settledNow {
		observability.WithPayment(s.logger, p.ID.String(), p.Reference, string(p.Method)).Warn().
			Bool("anomaly", true).
			Str("kind", AnomalyOrphanedSuccess).
			Msg("repaired successful payment without a vote")
		s.metrics.RecordAnomaly(AnomalyOrphanedSuccess)
	}
	return s.ledger.NoteVote(ctx, p, v.ID)
}

// reject settles the payment as failed. It reports whether this call made the
// change; a payment that already succeeded yields ErrInvalidTransition and an
// anomaly.
func (s *SettlementService) reject(ctx context.Context, p *payment.Payment, reason string) (bool, error) {
	current, changed, err := s.ledger.MarkFailed(ctx, p.Reference, reason)
	if errors.Is(err, domainErrors.ErrInvalidTransition) && current != nil {
		s.ledger.RecordAnomaly(ctx, current, payment.StatusFailed, AnomalyLateFailure, reason)
	}
	return changed, err
}

// AwaitConfirmation polls the provider with backoff until the payment settles
// or its confirmation horizon passes, at which point it is rejected.
func (s *SettlementService) AwaitConfirmation(ctx context.Context, reference string) (Outcome, error) {
	p, err := s.ledger.Find(ctx, reference)
	if err != nil {
		return "", err
	}
	if p.IsTerminal() {
		return outcomeOf(p), nil
	}

	deadline := s.deadline(p)
	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	log := observability.WithPayment(s.logger, p.ID.String(), p.Reference, string(p.Method))
	log.Debug().Time("deadline", deadline).Msg("awaiting confirmation")

	var outcome Outcome
	err = retry.Poll(pollCtx, s.cfg.Poll, func() (bool, error) {
		o, err := s.verifyPayment(pollCtx, p)
		if err != nil {
			if domainErrors.IsTransient(err) {
				log.Debug().Err(err).Msg("provider unavailable while polling")
				return false, nil
			}
			return false, err
		}
		outcome = o
		return o != OutcomePending, nil
	})
	if err == nil {
		return outcome, nil
	}
	if ctx.Err() == nil && pollCtx.Err() != nil {
		return s.Expire(ctx, reference)
	}
	return OutcomePending, err
}

func (s *SettlementService) deadline(p *payment.Payment) time.Time {
	start := p.CreatedAt
	if p.InitiatedAt != nil {
		start = *p.InitiatedAt
	}
	return start.Add(s.cfg.Horizon(p.Method))
}

// Expired reports whether a pending payment has outlived its horizon.
func (s *SettlementService) Expired(p *payment.Payment) bool {
	return !s.cfg.now().Before(s.deadline(p))
}

// Expire rejects a pending payment whose horizon has passed, after one final
// verification so a payment that did go through is confirmed instead.
func (s *SettlementService) Expire(ctx context.Context, reference string) (Outcome, error) {
	p, err := s.ledger.Find(ctx, reference)
	if err != nil {
		return "", err
	}
	if p.IsTerminal() {
		return outcomeOf(p), nil
	}

	provider, err := s.providers.Get(p.Method)
	if err == nil {
		ok, verifyErr := provider.Verify(ctx, p.VerifyReference())
		if verifyErr == nil && ok {
			if _, err := s.confirm(ctx, p.Reference); err != nil {
				return s.settledOutcome(ctx, p.Reference, err)
			}
			return OutcomeConfirmed, nil
		}
	}

	observability.WithPayment(s.logger, p.ID.String(), p.Reference, string(p.Method)).Info().
		Msg("confirmation horizon passed, rejecting")
	if _, err := s.reject(ctx, p, "confirmation horizon expired"); err != nil {
		return s.settledOutcome(ctx, p.Reference, err)
	}
	return OutcomeRejected, nil
}

// RepairOrphan materializes the missing vote of a successful payment.
func (s *SettlementService) RepairOrphan(ctx context.Context, reference string) error {
	_, err := s.confirm(ctx, reference)
	return err
}
