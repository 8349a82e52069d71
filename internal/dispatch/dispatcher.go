// Package dispatch is the synchronous intake path: validate, admit once per token per day,
// then hand the request to the queue.
package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/imrishuroy/go-idempotent-payflow/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-payflow/internal/metrics"
	"github.com/imrishuroy/go-idempotent-payflow/internal/payment"
	"github.com/imrishuroy/go-idempotent-payflow/internal/queue"
	"github.com/imrishuroy/go-idempotent-payflow/internal/validation"
)

// Config holds the Dispatcher's tunables.
type Config struct {
	RoutingKey string
	// Timeout bounds each guard and publish call.
	Timeout  time.Duration
	Location *time.Location
}

// Dispatcher admits payment submissions. Safe for concurrent use.
type Dispatcher struct {
	validator *validation.Validator
	guard     *idempotency.Guard
	publisher queue.Publisher
	recorder  metrics.Recorder
	cfg       Config
	nowFunc   func() time.Time
}

// New returns a Dispatcher. A nil recorder records nothing.
func New(v *validation.Validator, guard *idempotency.Guard, pub queue.Publisher, rec metrics.Recorder, cfg Config) *Dispatcher {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Dispatcher{
		validator: v,
		guard:     guard,
		publisher: pub,
		recorder:  rec,
		cfg:       cfg,
		nowFunc:   time.Now,
	}
}

// Submit runs one request through validation and the guard and enqueues it. isError is true
// for every outcome other than SUCCESS. Submit always returns a well-formed Response.
func (d *Dispatcher) Submit(ctx context.Context, req payment.Request) (resp payment.Response, isError bool) {
	start := d.nowFunc()
	defer func() {
		d.recorder.Observe(metrics.StageSubmit, resp.RespCode.Name(), d.nowFunc().Sub(start))
	}()

	if res := d.validator.Validate(req); !res.Valid() {
		log.Printf("[dispatch] validation failed token_key=%q errors=%v", req.TokenKey, res.FieldErrors)
		return d.respond("", payment.CodeValidation, res.Message()), true
	}

	// computed once so the check, the mark and any release agree on the day
	key := d.guard.KeyFor(req.TokenKey)

	seen, err := d.seenToday(ctx, key)
	if err != nil {
		log.Printf("[dispatch] guard check failed token_key=%s: %v", req.TokenKey, err)
		return d.respond("", payment.CodeSystem, ""), true
	}
	if seen {
		log.Printf("[dispatch] duplicate token_key=%s key=%s", req.TokenKey, key)
		return d.respond(req.TokenKey, payment.CodeTokenExists, ""), true
	}

	admitted, err := d.markSeenToday(ctx, key)
	if err != nil {
		log.Printf("[dispatch] guard mark failed token_key=%s: %v", req.TokenKey, err)
		return d.respond("", payment.CodeSystem, ""), true
	}
	if !admitted {
		log.Printf("[dispatch] lost admit race token_key=%s key=%s", req.TokenKey, key)
		return d.respond(req.TokenKey, payment.CodeTokenExists, ""), true
	}

	if err := d.enqueue(ctx, req); err != nil {
		log.Printf("[dispatch] enqueue failed token_key=%s: %v", req.TokenKey, err)
		d.release(ctx, key)
		return d.respond("", payment.CodeSystem, ""), true
	}

	log.Printf("[dispatch] accepted token_key=%s corr=%s", req.TokenKey, queue.CorrelationID(ctx))
	return d.respond(req.TokenKey, payment.CodeSuccess, ""), false
}

func (d *Dispatcher) seenToday(ctx context.Context, key idempotency.Key) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	return d.guard.SeenToday(ctx, key)
}

func (d *Dispatcher) markSeenToday(ctx context.Context, key idempotency.Key) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	return d.guard.MarkSeenToday(ctx, key)
}

func (d *Dispatcher) enqueue(ctx context.Context, req payment.Request) error {
	body, err := payment.MarshalRequest(req)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	return d.publisher.Publish(ctx, queue.Message{
		Key:  req.TokenKey,
		Body: body,
		Attributes: map[string]string{
			queue.AttrRoutingKey:    d.cfg.RoutingKey,
			queue.AttrCorrelationID: queue.CorrelationID(ctx),
		},
	})
}

// release undoes a mark whose request never reached the queue. It runs even if the caller's
// context is already done.
func (d *Dispatcher) release(ctx context.Context, key idempotency.Key) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.Timeout)
	defer cancel()
	if err := d.guard.Release(ctx, key); err != nil {
		log.Printf("[dispatch] release failed key=%s: %v", key, err)
	}
}

func (d *Dispatcher) respond(tokenKey string, code payment.Code, status string) payment.Response {
	return payment.NewResponse(tokenKey, code, status, d.nowFunc().In(d.cfg.Location))
}
