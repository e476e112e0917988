package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// OutboxPurger deletes relayed outbox entries.
type OutboxPurger interface {
	PurgePublished(ctx context.Context, before time.Time) (int64, error)
}

// IdempotencyCleaner deletes expired idempotency records.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Janitor trims tables that only grow: published outbox entries past their
// retention and expired idempotency keys.
type Janitor struct {
	outbox      OutboxPurger
	idempotency IdempotencyCleaner
	retention   time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

func NewJanitor(outbox OutboxPurger, idempotency IdempotencyCleaner, retention time.Duration, logger zerolog.Logger) *Janitor {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Janitor{
		outbox:      outbox,
		idempotency: idempotency,
		retention:   retention,
		now:         time.Now,
		logger:      logger.With().Str("component", "janitor").Logger(),
	}
}

func (j *Janitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass. Failures are logged and retried next pass.
func (j *Janitor) Sweep(ctx context.Context) (purged, expired int64) {
	purged, err := j.outbox.PurgePublished(ctx, j.now().Add(-j.retention))
	if err != nil {
		j.logger.Error().Err(err).Msg("outbox purge failed")
	}
	expired, err = j.idempotency.Cleanup(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("idempotency cleanup failed")
	}
	if purged > 0 || expired > 0 {
		j.logger.Info().Int64("outbox_purged", purged).Int64("idempotency_expired", expired).Msg("sweep complete")
	}
	return purged, expired
}
