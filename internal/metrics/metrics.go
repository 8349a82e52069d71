// Package metrics records per-stage outcomes of the payment pipeline.
package metrics

import (
	"context"
	"log"
	"time"
)

// Stages.
const (
	StageSubmit  = "submit"
	StagePersist = "persist"
)

// Recorder observes one outcome of a pipeline stage. Outcome is the response code name,
// e.g. SUCCESS or TOKEN_EXISTS_ERROR.
type Recorder interface {
	Observe(stage, outcome string, d time.Duration)
}

// Flusher is a Recorder that buffers and must be flushed to publish.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Flush flushes r if it buffers. Errors are logged.
func Flush(ctx context.Context, r Recorder) {
	f, ok := r.(Flusher)
	if !ok {
		return
	}
	if err := f.Flush(ctx); err != nil {
		log.Printf("[metrics] flush: %v", err)
	}
}

// Nop discards observations.
type Nop struct{}

func (Nop) Observe(string, string, time.Duration) {}
