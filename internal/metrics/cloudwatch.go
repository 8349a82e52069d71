package metrics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/go-idempotent-payflow/internal/aws"
)

const (
	// DefaultFlushInterval is how often Run pushes buffered datapoints.
	DefaultFlushInterval = 10 * time.Second

	// PutMetricData accepts at most 1000 datums per call.
	maxDatumsPerCall = 1000
	maxBuffered      = 20 * maxDatumsPerCall
)

// CloudWatch buffers observations and pushes them with PutMetricData on Flush. Observe never
// touches the network.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	timeout   time.Duration
	nowFunc   func() time.Time

	mu      sync.Mutex
	buf     []cwtypes.MetricDatum
	dropped int
}

// NewCloudWatch returns a recorder publishing under namespace.
func NewCloudWatch(client aws.CloudWatchAPI, namespace string) *CloudWatch {
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		timeout:   2 * time.Second,
		nowFunc:   time.Now,
	}
}

// Observe queues an Outcome count and a Duration datapoint. Once the buffer is full new
// observations are dropped until the next Flush.
func (c *CloudWatch) Observe(stage, outcome string, d time.Duration) {
	now := c.nowFunc()
	dims := []cwtypes.Dimension{
		{Name: awsString("Stage"), Value: awsString(stage)},
	}
	datums := []cwtypes.MetricDatum{
		{
			MetricName: awsString("Outcome"),
			Dimensions: append(dims, cwtypes.Dimension{Name: awsString("Outcome"), Value: awsString(outcome)}),
			Timestamp:  &now,
			Unit:       cwtypes.StandardUnitCount,
			Value:      awsFloat(1),
		},
		{
			MetricName: awsString("Duration"),
			Dimensions: dims,
			Timestamp:  &now,
			Unit:       cwtypes.StandardUnitMilliseconds,
			Value:      awsFloat(float64(d) / float64(time.Millisecond)),
		},
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf)+len(datums) > maxBuffered {
		c.dropped += len(datums)
		return
	}
	c.buf = append(c.buf, datums...)
}

// Flush sends everything buffered so far, maxDatumsPerCall at a time. Each call is bounded by
// the recorder's timeout. Datapoints from failed calls are not retried.
func (c *CloudWatch) Flush(ctx context.Context) error {
	c.mu.Lock()
	pending, dropped := c.buf, c.dropped
	c.buf, c.dropped = nil, 0
	c.mu.Unlock()

	if dropped > 0 {
		log.Printf("[metrics] buffer full, dropped %d datapoints", dropped)
	}

	var errs []error
	for len(pending) > 0 {
		n := min(len(pending), maxDatumsPerCall)
		if err := c.put(ctx, pending[:n]); err != nil {
			errs = append(errs, err)
		}
		pending = pending[n:]
	}
	return errors.Join(errs...)
}

func (c *CloudWatch) put(ctx context.Context, datums []cwtypes.MetricDatum) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  awsString(c.namespace),
		MetricData: datums,
	})
	if err != nil {
		return fmt.Errorf("put %d datapoints: %w", len(datums), err)
	}
	return nil
}

// Run flushes every interval until ctx is done, then flushes once more.
func (c *CloudWatch) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			Flush(context.WithoutCancel(ctx), c)
			return
		case <-ticker.C:
			Flush(ctx, c)
		}
	}
}

func awsString(s string) *string { return &s }
func awsFloat(f float64) *float64 { return &f }
