// Package persist is the consumer side of the pipeline: it stores queued payments exactly once
// per token and day and emits a response for each delivery.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/imrishuroy/go-idempotent-payflow/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-payflow/internal/metrics"
	"github.com/imrishuroy/go-idempotent-payflow/internal/payment"
	"github.com/imrishuroy/go-idempotent-payflow/internal/payments"
	"github.com/imrishuroy/go-idempotent-payflow/internal/queue"
)

// Config holds the Persister's tunables.
type Config struct {
	RoutingKey string
	// Timeout bounds each store, guard and publish call.
	Timeout  time.Duration
	Location *time.Location
}

// Persister handles request-queue deliveries. Safe for concurrent use.
type Persister struct {
	store     payments.Store
	guard     *idempotency.Guard
	responses queue.Publisher
	recorder  metrics.Recorder
	cfg       Config
	nowFunc   func() time.Time
}

// New returns a Persister. guard may be nil, in which case the fast-path mark is skipped.
func New(store payments.Store, guard *idempotency.Guard, responses queue.Publisher, rec metrics.Recorder, cfg Config) *Persister {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Persister{
		store:     store,
		guard:     guard,
		responses: responses,
		recorder:  rec,
		cfg:       cfg,
		nowFunc:   time.Now,
	}
}

// Handle adapts Process to a queue.Handler. A non-nil error leaves the delivery for redelivery.
func (p *Persister) Handle(ctx context.Context, d queue.Delivery) error {
	if id := d.Attributes[queue.AttrCorrelationID]; id != "" {
		ctx = queue.WithCorrelationID(ctx, id)
	}
	resp, err := p.Process(ctx, d.Body)
	if err != nil {
		log.Printf("[persist] delivery failed key=%s attempt=%d code=%s: %v", d.Key, d.Attempt, resp.RespCode, err)
	}
	return err
}

// Process persists one serialized request and publishes the response. The returned error is
// non-nil only for transient failures that should be retried; malformed messages and
// duplicates are acknowledged.
func (p *Persister) Process(ctx context.Context, raw []byte) (resp payment.Response, err error) {
	start := p.nowFunc()
	defer func() {
		p.recorder.Observe(metrics.StagePersist, resp.RespCode.Name(), p.nowFunc().Sub(start))
		p.emit(ctx, resp)
	}()

	req, err := payment.UnmarshalRequest(raw)
	if err != nil {
		log.Printf("[persist] dropping malformed message: %v", err)
		return p.respond("", payment.CodeSystem), nil
	}
	rec, err := payments.NewRecord(req, start)
	if err != nil {
		log.Printf("[persist] dropping malformed message token_key=%q: %v", req.TokenKey, err)
		return p.respond("", payment.CodeSystem), nil
	}

	found, err := p.exists(ctx, rec)
	if err != nil {
		return p.respond("", payment.CodeSystem), fmt.Errorf("check %s: %w", rec.PaymentKey, err)
	}
	if found {
		log.Printf("[persist] duplicate delivery token_key=%s pay_day=%s", rec.TokenKey, rec.PayDay)
		return p.respond(rec.TokenKey, payment.CodeTokenExists), nil
	}

	if err := p.insert(ctx, rec); err != nil {
		if errors.Is(err, payments.ErrDuplicate) {
			log.Printf("[persist] lost insert race token_key=%s pay_day=%s", rec.TokenKey, rec.PayDay)
			return p.respond(rec.TokenKey, payment.CodeTokenExists), nil
		}
		return p.respond("", payment.CodeSystem), fmt.Errorf("insert %s: %w", rec.PaymentKey, err)
	}

	p.markGuard(ctx, rec.TokenKey)
	log.Printf("[persist] stored token_key=%s pay_day=%s corr=%s", rec.TokenKey, rec.PayDay, queue.CorrelationID(ctx))
	return p.respond(rec.TokenKey, payment.CodeSuccess), nil
}

func (p *Persister) exists(ctx context.Context, rec payments.Record) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return p.store.Exists(ctx, rec.TokenKey, rec.PayDay)
}

func (p *Persister) insert(ctx context.Context, rec payments.Record) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return p.store.Insert(ctx, rec)
}

// markGuard lets the intake fast path reject replays of a stored payment. Failures only cost a
// trip to the store on the next duplicate.
func (p *Persister) markGuard(ctx context.Context, tokenKey string) {
	if p.guard == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	if _, err := p.guard.MarkSeenToday(ctx, p.guard.KeyFor(tokenKey)); err != nil {
		log.Printf("[persist] guard mark failed token_key=%s: %v", tokenKey, err)
	}
}

// emit publishes resp to the response channel. Fire-and-forget: failures are logged.
func (p *Persister) emit(ctx context.Context, resp payment.Response) {
	if p.responses == nil {
		return
	}
	body, err := payment.MarshalResponse(resp)
	if err != nil {
		log.Printf("[persist] encode response token_key=%s: %v", resp.TokenKey, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.Timeout)
	defer cancel()
	err = p.responses.Publish(ctx, queue.Message{
		Key:  resp.TokenKey,
		Body: body,
		Attributes: map[string]string{
			queue.AttrRoutingKey:    p.cfg.RoutingKey,
			queue.AttrCorrelationID: queue.CorrelationID(ctx),
		},
	})
	if err != nil {
		log.Printf("[persist] publish response token_key=%s code=%s: %v", resp.TokenKey, resp.RespCode, err)
	}
}

func (p *Persister) respond(tokenKey string, code payment.Code) payment.Response {
	return payment.NewResponse(tokenKey, code, "", p.nowFunc().In(p.cfg.Location))
}
