package main

import (
	"context"
	"log"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-idempotent-payflow/internal/metrics"
	"github.com/imrishuroy/go-idempotent-payflow/internal/queue"
)

// Processor handles SQS batch events delivered to the Lambda worker.
type Processor struct {
	handle   queue.Handler
	recorder metrics.Recorder
}

// NewProcessor wraps the per-message handler. A buffering recorder is flushed after every
// batch, before Lambda freezes the environment. rec may be nil.
func NewProcessor(handle queue.Handler, rec metrics.Recorder) *Processor {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Processor{handle: handle, recorder: rec}
}

// Handle processes each record and reports only the failed ones, so SQS retries those and
// eventually moves them to the DLQ without redelivering the rest of the batch.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		d := deliveryFromEvent(rec)
		if err := p.handle(ctx, d); err != nil {
			log.Printf("[worker] message=%s attempt=%d failed: %v", rec.MessageId, d.Attempt, err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	if n := len(resp.BatchItemFailures); n > 0 {
		log.Printf("[worker] batch done records=%d failed=%d", len(ev.Records), n)
	}
	metrics.Flush(ctx, p.recorder)
	return resp, nil
}

func deliveryFromEvent(rec events.SQSMessage) queue.Delivery {
	attrs := make(map[string]string, len(rec.MessageAttributes))
	for k, v := range rec.MessageAttributes {
		if v.StringValue != nil {
			attrs[k] = *v.StringValue
		}
	}
	attempt, err := strconv.Atoi(rec.Attributes["ApproximateReceiveCount"])
	if err != nil || attempt < 1 {
		attempt = 1
	}
	return queue.Delivery{
		Key:        attrs[queue.AttrTokenKey],
		Body:       []byte(rec.Body),
		Attributes: attrs,
		Attempt:    attempt,
	}
}
