package worker

import (
	"context"
	"time"

	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/cassiomorais/awards/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/awards/internal/infrastructure/redis"
	"github.com/cassiomorais/awards/internal/service"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Consumer reads settlement events as a member of a consumer group.
type Consumer interface {
	Stream() string
	Read(ctx context.Context) ([]infraRedis.Message, error)
	ClaimStale(ctx context.Context, minIdle time.Duration) ([]infraRedis.Message, error)
	Ack(ctx context.Context, messageID string) error
}

// DeadLetters parks messages that cannot be processed.
type DeadLetters interface {
	PublishToDLQ(ctx context.Context, msg infraRedis.Message, reason string) error
}

// Confirmer polls a payment until it settles or its horizon passes.
type Confirmer interface {
	AwaitConfirmation(ctx context.Context, reference string) (service.Outcome, error)
}

type PushConfig struct {
	// Concurrency bounds how many payments are polled at once.
	Concurrency int
	// LockTTL must cover a whole poll, so it is at least the push horizon.
	LockTTL time.Duration
	// ClaimIdle is how long a message may sit unacked before another worker
	// takes it over.
	ClaimIdle time.Duration
}

// PushConfirmer drives push-to-phone payments to an outcome. Such payments
// never get a webhook, so every initiated push payment published on the
// settlement stream is polled here until it settles or expires.
type PushConfirmer struct {
	consumer   Consumer
	dlq        DeadLetters
	settlement Confirmer
	locker     service.Locker
	cfg        PushConfig
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// NewPushConfirmer builds a PushConfirmer. locker may be nil.
func NewPushConfirmer(
	consumer Consumer,
	dlq DeadLetters,
	settlement Confirmer,
	locker service.Locker,
	cfg PushConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PushConfirmer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = cfg.LockTTL
	}
	return &PushConfirmer{
		consumer:   consumer,
		dlq:        dlq,
		settlement: settlement,
		locker:     locker,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger.With().Str("component", "push_confirmer").Logger(),
	}
}

// Run consumes until ctx is done, then waits for in-flight polls to stop.
func (c *PushConfirmer) Run(ctx context.Context) error {
	g := &errgroup.Group{}
	g.SetLimit(c.cfg.Concurrency)

	c.dispatch(ctx, g, c.claim(ctx))
	for {
		if ctx.Err() != nil {
			break
		}
		msgs, err := c.consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Error().Err(err).Msg("failed to read settlement stream")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		c.dispatch(ctx, g, msgs)
	}
	return g.Wait()
}

func (c *PushConfirmer) claim(ctx context.Context) []infraRedis.Message {
	msgs, err := c.consumer.ClaimStale(ctx, c.cfg.ClaimIdle)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to claim stale messages")
		return nil
	}
	return msgs
}

func (c *PushConfirmer) dispatch(ctx context.Context, g *errgroup.Group, msgs []infraRedis.Message) {
	for _, msg := range msgs {
		g.Go(func() error {
			c.Handle(ctx, msg)
			return nil
		})
	}
}

// Handle processes one message. Messages are acked once handled, including
// ones that are not push initiations; a message interrupted by shutdown is
// left pending so another worker can claim it.
func (c *PushConfirmer) Handle(ctx context.Context, msg infraRedis.Message) {
	start := time.Now()
	stream := c.consumer.Stream()

	if msg.EventType != payment.EventInitiated {
		c.ack(ctx, msg)
		return
	}
	method, err := payment.ParseMethod(msg.String("method"))
	if err != nil || !method.IsPush() {
		c.ack(ctx, msg)
		return
	}
	reference := msg.String("reference")
	if reference == "" {
		c.deadLetter(ctx, msg, "initiated event without reference")
		c.metrics.RecordWorkerMessage(stream, "dead_letter", start)
		return
	}

	log := c.logger.With().Str("reference", reference).Str("method", string(method)).Logger()

	if c.locker != nil {
		release, ok, err := c.locker.TryLock(ctx, "settle:"+reference, c.cfg.LockTTL)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("lock unavailable, polling unlocked")
		case !ok:
			log.Debug().Msg("payment already being polled")
			c.ack(ctx, msg)
			c.metrics.RecordWorkerMessage(stream, "skipped", start)
			return
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					log.Debug().Err(err).Msg("lock release failed")
				}
			}()
		}
	}

	outcome, err := c.settlement.AwaitConfirmation(ctx, reference)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Msg("awaiting confirmation failed")
		c.deadLetter(ctx, msg, err.Error())
		c.metrics.RecordWorkerMessage(stream, "error", start)
		return
	}

	log.Info().Str("outcome", string(outcome)).Dur("elapsed", time.Since(start)).Msg("push payment settled")
	c.ack(ctx, msg)
	c.metrics.RecordWorkerMessage(stream, string(outcome), start)
}

func (c *PushConfirmer) deadLetter(ctx context.Context, msg infraRedis.Message, reason string) {
	if err := c.dlq.PublishToDLQ(ctx, msg, reason); err != nil {
		// Leave the message pending; it will be claimed and retried.
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("failed to dead-letter message")
		return
	}
	c.ack(ctx, msg)
}

func (c *PushConfirmer) ack(ctx context.Context, msg infraRedis.Message) {
	if err := c.consumer.Ack(ctx, msg.ID); err != nil {
		c.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to ack message")
	}
}
