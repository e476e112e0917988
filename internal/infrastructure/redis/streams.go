package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cassiomorais/awards/internal/domain/outbox"
	"github.com/redis/go-redis/v9"
)

const (
	SettlementStream = "settlement:events"
	DLQStream        = "settlement:dlq"

	// streamMaxLen caps the stream; XADD trims approximately.
	streamMaxLen = 100_000
)

// Message is a settlement event as read back from the stream.
type Message struct {
	ID          string
	EventID     string
	EventType   string
	AggregateID string
	Payload     map[string]any
	PublishedAt time.Time
}

// String reads a payload field, returning "" when it is absent or not a string.
func (m Message) String(key string) string {
	s, _ := m.Payload[key].(string)
	return s
}

type StreamProducer struct {
	client redis.UniversalClient
	stream string
}

func NewStreamProducer(client redis.UniversalClient) *StreamProducer {
	return &StreamProducer{client: client, stream: SettlementStream}
}

// Publish appends an outbox entry to the settlement stream.
func (p *StreamProducer) Publish(ctx context.Context, entry *outbox.Entry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", entry.ID, err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":     entry.ID.String(),
			"event_type":   entry.EventType,
			"aggregate_id": entry.AggregateID.String(),
			"payload":      string(payload),
			"timestamp":    time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", entry.EventType, err)
	}
	return nil
}

// PublishToDLQ parks a message that could not be processed.
func (p *StreamProducer) PublishToDLQ(ctx context.Context, msg Message, reason string) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ payload: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DLQStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"message_id":   msg.ID,
			"event_type":   msg.EventType,
			"aggregate_id": msg.AggregateID,
			"reason":       reason,
			"payload":      string(payload),
			"timestamp":    time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}
	return nil
}

type StreamConsumer struct {
	client        redis.UniversalClient
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client redis.UniversalClient,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) Stream() string { return c.stream }

// CreateGroup creates the consumer group and the stream if needed.
func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read blocks for up to the block duration and returns new messages.
func (c *StreamConsumer) Read(ctx context.Context) ([]Message, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var out []Message
	for _, s := range streams {
		for _, xm := range s.Messages {
			out = append(out, decodeMessage(xm))
		}
	}
	return out, nil
}

// ClaimStale takes over messages another consumer read but never acked.
func (c *StreamConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]Message, error) {
	xms, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}

	out := make([]Message, 0, len(xms))
	for _, xm := range xms {
		out = append(out, decodeMessage(xm))
	}
	return out, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", messageID, err)
	}
	return nil
}

func decodeMessage(xm redis.XMessage) Message {
	msg := Message{ID: xm.ID, Payload: map[string]any{}}
	msg.EventID, _ = xm.Values["event_id"].(string)
	msg.EventType, _ = xm.Values["event_type"].(string)
	msg.AggregateID, _ = xm.Values["aggregate_id"].(string)

	if raw, ok := xm.Values["payload"].(string); ok {
		// A malformed payload leaves Payload empty; consumers treat that as a
		// message to drop.
		_ = json.Unmarshal([]byte(raw), &msg.Payload)
	}
	switch ts := xm.Values["timestamp"].(type) {
	case string:
		if sec, err := strconv.ParseInt(ts, 10, 64); err == nil {
			msg.PublishedAt = time.Unix(sec, 0).UTC()
		}
	case int64:
		msg.PublishedAt = time.Unix(ts, 0).UTC()
	}
	return msg
}
