// Package kafka implements the domain broker ports on segmentio/kafka-go.
// Connection management, offset handling, and delivery retries stay inside
// the broker client; the engine only sees raw payloads in and keyed intents
// out.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/pairsbot/internal/domain"
)

// Config holds the broker connection settings shared by the consumer and
// publisher.
type Config struct {
	Brokers      []string
	FeedTopic    string
	IntentsTopic string
	GroupID      string
	MaxWait      time.Duration
	WriteTimeout time.Duration
	RequiredAcks int
}

// Consumer is a consumer-group reader on the feed topic. It implements
// domain.MessageSource.
type Consumer struct {
	reader *kafkago.Reader
}

// NewConsumer creates a Consumer subscribed to the feed topic.
func NewConsumer(cfg Config) *Consumer {
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 500 * time.Millisecond
	}
	return &Consumer{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    cfg.FeedTopic,
			MinBytes: 1,
			MaxBytes: 1 << 20,
			MaxWait:  maxWait,
		}),
	}
}

// Fetch returns the next message payload. It reports domain.ErrStreamClosed
// once the reader has been closed; transient broker errors are returned
// as-is for the caller to log and skip.
func (c *Consumer) Fetch(ctx context.Context) ([]byte, error) {
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.ErrStreamClosed
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("kafka: read message: %w", err)
	}
	return msg.Value, nil
}

// Close shuts the reader down, unblocking any in-flight Fetch.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Publisher is a keyed writer on the intents topic. It implements
// domain.IntentPublisher.
type Publisher struct {
	writer *kafkago.Writer
}

// NewPublisher creates a Publisher for the intents topic. Writes are
// synchronous: Publish returns once the leader has acknowledged.
func NewPublisher(cfg Config) *Publisher {
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Publisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        cfg.IntentsTopic,
			Balancer:     &kafkago.CRC32Balancer{},
			WriteTimeout: writeTimeout,
			RequiredAcks: kafkago.RequiredAcks(cfg.RequiredAcks),
			BatchTimeout: 5 * time.Millisecond,
			Async:        false,
		},
	}
}

// Publish serializes the intent and writes it keyed by ticker (empty key for
// the wildcard wind-down intent).
func (p *Publisher) Publish(ctx context.Context, intent domain.PositionIntent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("kafka: marshal intent %s: %w", intent.ID, err)
	}

	msg := kafkago.Message{
		Key:   []byte(intent.PublishKey()),
		Value: payload,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish intent %s: %w", intent.ID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Compile-time interface checks.
var (
	_ domain.MessageSource   = (*Consumer)(nil)
	_ domain.IntentPublisher = (*Publisher)(nil)
)
