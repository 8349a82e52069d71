package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/imrishuroy/go-idempotent-payflow/internal/queue"
)

// Publisher sends queue messages to one SQS queue.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// Publish sends msg.Body as the message body. The message key and attributes travel as
// string MessageAttributes.
func (p *Publisher) Publish(ctx context.Context, msg queue.Message) error {
	body := string(msg.Body)
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &body,
	}

	attrs := make(map[string]sqstypes.MessageAttributeValue, len(msg.Attributes)+1)
	for k, v := range msg.Attributes {
		if v == "" {
			// SQS rejects empty attribute values
			continue
		}
		attrs[k] = stringAttr(v)
	}
	if msg.Key != "" {
		attrs[queue.AttrTokenKey] = stringAttr(msg.Key)
	}
	if len(attrs) > 0 {
		input.MessageAttributes = attrs
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func stringAttr(v string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{
		DataType:    awsString("String"),
		StringValue: awsString(v),
	}
}

// awsString helper
func awsString(s string) *string { return &s }
