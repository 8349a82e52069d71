package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes messages to a single topic, partitioned by message key.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher returns a publisher for topic. Messages with the same key land on the same partition.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	km := kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Body,
		Time:  time.Now(),
	}
	for k, v := range msg.Attributes {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if err := p.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("write message to %s: %w", p.writer.Topic, err)
	}
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// kafkaReader is the subset of *kafka.Reader used by KafkaConsumer.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads a topic as part of a consumer group.
//
// Kafka keeps no per-message receive count, so failed deliveries are retried in-process up to
// MaxAttempts times and then published to the dead-letter publisher. The offset is committed only
// after the message is either handled or dead-lettered.
type KafkaConsumer struct {
	reader      kafkaReader
	deadLetter  Publisher
	maxAttempts int
	retryDelay  time.Duration
}

// KafkaConsumerConfig configures NewKafkaConsumer.
type KafkaConsumerConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	MaxAttempts int
	RetryDelay  time.Duration
}

// NewKafkaConsumer joins cfg.GroupID on cfg.Topic.
func NewKafkaConsumer(cfg KafkaConsumerConfig, deadLetter Publisher) *KafkaConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newKafkaConsumer(r, deadLetter, cfg.MaxAttempts, cfg.RetryDelay)
}

func newKafkaConsumer(r kafkaReader, deadLetter Publisher, maxAttempts int, retryDelay time.Duration) *KafkaConsumer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &KafkaConsumer{
		reader:      r,
		deadLetter:  deadLetter,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}
}

// Run consumes until ctx is cancelled. It returns nil on cancellation.
func (c *KafkaConsumer) Run(ctx context.Context, handle Handler) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.deliver(ctx, m, handle); err != nil {
			// uncommitted, so the group redelivers it after restart
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", m.Offset, err)
		}
	}
}

func (c *KafkaConsumer) deliver(ctx context.Context, m kafka.Message, handle Handler) error {
	attrs := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		attrs[h.Key] = string(h.Value)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = handle(ctx, Delivery{
			Key:        string(m.Key),
			Body:       m.Value,
			Attributes: attrs,
			Attempt:    attempt,
		})
		if lastErr == nil {
			return nil
		}
		log.Printf("[queue] delivery failed topic=%s offset=%d key=%s attempt=%d/%d err=%v",
			m.Topic, m.Offset, m.Key, attempt, c.maxAttempts, lastErr)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt < c.maxAttempts && c.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}

	return c.sendToDeadLetter(ctx, m, lastErr)
}

func (c *KafkaConsumer) sendToDeadLetter(ctx context.Context, m kafka.Message, cause error) error {
	if c.deadLetter == nil {
		log.Printf("[queue] dropping message topic=%s offset=%d key=%s: no dead-letter topic configured", m.Topic, m.Offset, m.Key)
		return nil
	}
	body, err := json.Marshal(DeadLetter{
		OriginalTopic: m.Topic,
		Key:           string(m.Key),
		Value:         string(m.Value),
		Timestamp:     time.Now().UTC(),
		Attempts:      c.maxAttempts,
		Error:         errString(cause),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if err := c.deadLetter.Publish(ctx, Message{Key: string(m.Key), Body: body}); err != nil {
		// Not committing the offset means the message is fetched again after a restart.
		return fmt.Errorf("publish dead letter for offset %d: %w", m.Offset, err)
	}
	return nil
}

// Close leaves the consumer group.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
