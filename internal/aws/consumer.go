package aws

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/imrishuroy/go-idempotent-payflow/internal/queue"
)

// Consumer long-polls one SQS queue.
//
// A message is deleted only after the handler returns nil. Otherwise it becomes visible again
// once its visibility timeout expires, and the queue's redrive policy moves it to the dead-letter
// queue after maxReceiveCount receives.
type Consumer struct {
	SQS         SQSAPI
	QueueURL    string
	WaitSeconds int32
	MaxMessages int32
	// ErrorBackoff is the pause after a failed ReceiveMessage call.
	ErrorBackoff time.Duration
}

// NewConsumer returns a Consumer with 20s long polling and batches of up to 10 messages.
func NewConsumer(sqsClient SQSAPI, queueURL string) *Consumer {
	return &Consumer{
		SQS:          sqsClient,
		QueueURL:     queueURL,
		WaitSeconds:  20,
		MaxMessages:  10,
		ErrorBackoff: time.Second,
	}
}

// Run polls until ctx is cancelled. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context, handle queue.Handler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		out, err := c.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:                    &c.QueueURL,
			MaxNumberOfMessages:         c.MaxMessages,
			WaitTimeSeconds:             c.WaitSeconds,
			MessageAttributeNames:       []string{"All"},
			MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameApproximateReceiveCount},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[sqs] receive from %s failed: %v", c.QueueURL, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.ErrorBackoff):
			}
			continue
		}

		for _, m := range out.Messages {
			c.handleMessage(ctx, m, handle)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, m sqstypes.Message, handle queue.Handler) {
	d := deliveryFromSQS(m)
	if err := handle(ctx, d); err != nil {
		log.Printf("[sqs] message %s left for redelivery (attempt %d): %v", deref(m.MessageId), d.Attempt, err)
		return
	}
	if _, err := c.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.QueueURL,
		ReceiptHandle: m.ReceiptHandle,
	}); err != nil {
		// The message will be redelivered; handlers are idempotent.
		log.Printf("[sqs] delete message %s failed: %v", deref(m.MessageId), err)
	}
}

// deliveryFromSQS converts a received SQS message into a queue.Delivery.
func deliveryFromSQS(m sqstypes.Message) queue.Delivery {
	attrs := make(map[string]string, len(m.MessageAttributes))
	for k, v := range m.MessageAttributes {
		if v.StringValue != nil {
			attrs[k] = *v.StringValue
		}
	}
	return queue.Delivery{
		Key:        attrs[queue.AttrTokenKey],
		Body:       []byte(deref(m.Body)),
		Attributes: attrs,
		Attempt:    receiveCount(m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]),
	}
}

func receiveCount(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
