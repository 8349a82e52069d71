// Package queue defines the at-least-once channel between the dispatcher and the persister.
//
// Transports (SQS in internal/aws, Kafka here) publish Messages and hand Deliveries to a
// Handler. A Handler returning an error asks the transport to redeliver; transports bound the
// number of redeliveries and route exhausted messages to a dead-letter destination.
package queue

import (
	"context"
	"time"
)

// Attribute names carried alongside every message.
const (
	AttrTokenKey      = "token_key"
	AttrRoutingKey    = "routing_key"
	AttrCorrelationID = "correlation_id"
)

// Message is an outbound payload. Key groups related messages (the payment tokenKey).
type Message struct {
	Key        string
	Body       []byte
	Attributes map[string]string
}

// Delivery is an inbound payload handed to a Handler.
type Delivery struct {
	Key        string
	Body       []byte
	Attributes map[string]string
	// Attempt is 1 on first delivery.
	Attempt int
}

// Publisher sends messages to one destination.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Handler processes one delivery. A nil error acknowledges it.
type Handler func(ctx context.Context, d Delivery) error

// DeadLetter wraps a message that exhausted its delivery attempts.
type DeadLetter struct {
	OriginalTopic string    `json:"original_topic"`
	Key           string    `json:"key"`
	Value         string    `json:"value"`
	Timestamp     time.Time `json:"timestamp"`
	Attempts      int       `json:"attempts"`
	Error         string    `json:"error"`
}

type correlationKey struct{}

// WithCorrelationID stores a request correlation id on the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id stored by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
