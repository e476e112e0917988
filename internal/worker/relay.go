package worker

import (
	"context"
	"time"

	"github.com/cassiomorais/awards/internal/domain/outbox"
	"github.com/cassiomorais/awards/internal/infrastructure/observability"
	"github.com/cassiomorais/awards/internal/service"
	"github.com/rs/zerolog"
)

const outboxStream = "outbox"

// Publisher delivers a settlement event to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, entry *outbox.Entry) error
}

// OutboxRelay moves settlement events from the outbox table to the event
// stream. Delivery is at least once: an entry is marked published only after
// the publisher accepted it.
type OutboxRelay struct {
	txManager service.TransactionManager
	outbox    outbox.Repository
	publisher Publisher
	batchSize int
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewOutboxRelay(
	txManager service.TransactionManager,
	outboxRepo outbox.Repository,
	publisher Publisher,
	batchSize int,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &OutboxRelay{
		txManager: txManager,
		outbox:    outboxRepo,
		publisher: publisher,
		batchSize: batchSize,
		metrics:   metrics,
		logger:    logger.With().Str("component", "outbox_relay").Logger(),
	}
}

// Run relays every interval until ctx is done. A fully published batch is
// followed immediately by another pass.
func (r *OutboxRelay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("outbox relay pass failed")
		}
		if n == r.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce claims one batch and publishes it, returning how many entries
// were published.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	published := 0
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := r.outbox.ClaimPending(txCtx, r.batchSize)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			start := time.Now()
			if err := r.publisher.Publish(ctx, entry); err != nil {
				r.logger.Warn().Err(err).
					Str("outbox_id", entry.ID.String()).
					Str("event_type", entry.EventType).
					Int("retry_count", entry.RetryCount).
					Msg("failed to publish settlement event")
				if err := r.outbox.MarkFailed(txCtx, entry.ID, err.Error()); err != nil {
					return err
				}
				r.metrics.RecordWorkerMessage(outboxStream, "failed", start)
				continue
			}
			if err := r.outbox.MarkPublished(txCtx, entry.ID); err != nil {
				return err
			}
			published++
			r.metrics.RecordWorkerMessage(outboxStream, "published", start)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}
