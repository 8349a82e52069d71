package persist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/imrishuroy/go-idempotent-payflow/internal/dispatch"
	"github.com/imrishuroy/go-idempotent-payflow/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-payflow/internal/payment"
	"github.com/imrishuroy/go-idempotent-payflow/internal/queue"
	"github.com/imrishuroy/go-idempotent-payflow/internal/validation"
)

// chanQueue is an in-process at-least-once channel: every published message is delivered
// twice to simulate broker redelivery.
type chanQueue struct {
	ch chan queue.Message
}

func (q *chanQueue) Publish(ctx context.Context, msg queue.Message) error {
	q.ch <- msg
	q.ch <- msg
	return nil
}

func TestPipeline_ConcurrentSubmissionsPersistOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	guard := idempotency.NewGuard(idempotency.NewRedisStore(rdb), idempotency.DefaultTTL, time.UTC)
	requests := &chanQueue{ch: make(chan queue.Message, 64)}
	d := dispatch.New(validation.New(), guard, requests, nil, dispatch.Config{Timeout: time.Second})

	store := newMemStore()
	responses := &recordingPublisher{}
	p := New(store, guard, responses, nil, Config{Timeout: time.Second})

	const n = 20
	results := make([]payment.Response, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], _ = d.Submit(context.Background(), validRequest("PIPE"))
		}(i)
	}
	wg.Wait()
	close(requests.ch)

	success := 0
	for _, r := range results {
		if r.RespCode == payment.CodeSuccess {
			success++
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one SUCCESS, got %d", success)
	}

	// two consumers drain the doubled deliveries
	var cw sync.WaitGroup
	for i := 0; i < 2; i++ {
		cw.Add(1)
		go func() {
			defer cw.Done()
			for msg := range requests.ch {
				if err := p.Handle(context.Background(), queue.Delivery{Key: msg.Key, Body: msg.Body, Attributes: msg.Attributes, Attempt: 1}); err != nil {
					t.Errorf("Handle: %v", err)
				}
			}
		}()
	}
	cw.Wait()

	if store.count() != 1 {
		t.Fatalf("expected exactly one persisted record, got %d", store.count())
	}
	var ok, dup int
	for _, r := range responses.responses(t) {
		switch r.RespCode {
		case payment.CodeSuccess:
			ok++
		case payment.CodeTokenExists:
			dup++
		}
	}
	if ok != 1 || dup != 1 {
		t.Fatalf("expected one SUCCESS and one TOKEN_EXISTS_ERROR response, got %d and %d", ok, dup)
	}
}
