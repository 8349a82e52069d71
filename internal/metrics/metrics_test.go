package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheus_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg, "payment")
	if err != nil {
		t.Fatalf("NewPrometheus: %v", err)
	}

	p.Observe(StageSubmit, "SUCCESS", 10*time.Millisecond)
	p.Observe(StageSubmit, "SUCCESS", 20*time.Millisecond)
	p.Observe(StageSubmit, "TOKEN_EXISTS_ERROR", time.Millisecond)

	if got := testutil.ToFloat64(p.outcomes.WithLabelValues(StageSubmit, "SUCCESS")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(p.outcomes.WithLabelValues(StageSubmit, "TOKEN_EXISTS_ERROR")); got != 1 {
		t.Fatalf("expected 1 duplicate, got %v", got)
	}
	if n := testutil.CollectAndCount(p.latency); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}

	if _, err := NewPrometheus(reg, "payment"); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

type mockCloudWatch struct {
	mu     sync.Mutex
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func (m *mockCloudWatch) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

func TestCloudWatch_ObserveBuffersUntilFlush(t *testing.T) {
	mock := &mockCloudWatch{}
	cw := NewCloudWatch(mock, "Payments")

	cw.Observe(StagePersist, "SUCCESS", 1500*time.Microsecond)
	if n := mock.calls(); n != 0 {
		t.Fatalf("Observe must not call CloudWatch, got %d calls", n)
	}

	if err := cw.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n := mock.calls(); n != 1 {
		t.Fatalf("expected one PutMetricData call, got %d", n)
	}
	in := mock.inputs[0]
	if *in.Namespace != "Payments" || len(in.MetricData) != 2 {
		t.Fatalf("unexpected input: %+v", in)
	}
	if got := *in.MetricData[1].Value; got != 1.5 {
		t.Fatalf("expected 1.5ms, got %v", got)
	}
	if dims := in.MetricData[0].Dimensions; len(dims) != 2 || *dims[1].Value != "SUCCESS" {
		t.Fatalf("unexpected outcome dimensions: %+v", dims)
	}

	// nothing left to send
	if err := cw.Flush(context.Background()); err != nil || mock.calls() != 1 {
		t.Fatalf("empty flush should be a no-op, err=%v calls=%d", err, mock.calls())
	}
}

func TestCloudWatch_FlushBatches(t *testing.T) {
	mock := &mockCloudWatch{}
	cw := NewCloudWatch(mock, "Payments")

	// two datums per observation
	for i := 0; i < 600; i++ {
		cw.Observe(StageSubmit, "SUCCESS", time.Millisecond)
	}
	if err := cw.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n := mock.calls(); n != 2 {
		t.Fatalf("expected 2 calls, got %d", n)
	}
	if a, b := len(mock.inputs[0].MetricData), len(mock.inputs[1].MetricData); a != maxDatumsPerCall || b != 200 {
		t.Fatalf("unexpected batch sizes %d and %d", a, b)
	}
}

func TestCloudWatch_FlushErrorDropsBatch(t *testing.T) {
	mock := &mockCloudWatch{err: errors.New("throttled")}
	cw := NewCloudWatch(mock, "Payments")

	cw.Observe(StagePersist, "SYSTEM_ERROR", time.Millisecond)
	if err := cw.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}

	mock.err = nil
	if err := cw.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n := mock.calls(); n != 1 {
		t.Fatalf("failed datapoints should not be resent, got %d calls", n)
	}
}

func TestCloudWatch_BufferIsBounded(t *testing.T) {
	mock := &mockCloudWatch{}
	cw := NewCloudWatch(mock, "Payments")

	for i := 0; i < maxBuffered; i++ {
		cw.Observe(StageSubmit, "SUCCESS", time.Millisecond)
	}
	cw.mu.Lock()
	buffered, dropped := len(cw.buf), cw.dropped
	cw.mu.Unlock()
	if buffered != maxBuffered || dropped != maxBuffered {
		t.Fatalf("expected %d buffered and %d dropped, got %d and %d", maxBuffered, maxBuffered, buffered, dropped)
	}
}

func TestCloudWatch_RunFlushesOnShutdown(t *testing.T) {
	mock := &mockCloudWatch{}
	cw := NewCloudWatch(mock, "Payments")
	cw.Observe(StageSubmit, "SUCCESS", time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cw.Run(ctx, time.Hour)

	if n := mock.calls(); n != 1 {
		t.Fatalf("expected a final flush, got %d calls", n)
	}
}

func TestFlush_IgnoresNonBuffering(t *testing.T) {
	Flush(context.Background(), Nop{})

	mock := &mockCloudWatch{}
	cw := NewCloudWatch(mock, "Payments")
	cw.Observe(StageSubmit, "SUCCESS", time.Millisecond)
	var r Recorder = cw
	Flush(context.Background(), r)
	if mock.calls() != 1 {
		t.Fatalf("expected Flush to reach the CloudWatch recorder, got %d calls", mock.calls())
	}
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	r.Observe(StageSubmit, "SUCCESS", time.Second)
}
