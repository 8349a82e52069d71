package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-idempotent-payflow/internal/app"
	"github.com/imrishuroy/go-idempotent-payflow/internal/aws"
	"github.com/imrishuroy/go-idempotent-payflow/internal/config"
	"github.com/imrishuroy/go-idempotent-payflow/internal/metrics"
	"github.com/imrishuroy/go-idempotent-payflow/internal/persist"
	"github.com/imrishuroy/go-idempotent-payflow/internal/queue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	store, closeStore, err := app.NewStore(ctx, cfg, clients)
	if err != nil {
		log.Fatalf("failed to init payment store: %v", err)
	}
	defer closeStore()

	guard, closeGuard, err := app.NewGuard(ctx, cfg, clients)
	if err != nil {
		log.Fatalf("failed to init idempotency guard: %v", err)
	}
	defer closeGuard()

	pubs, closePubs, err := app.NewPublishers(cfg, clients)
	if err != nil {
		log.Fatalf("failed to init publishers: %v", err)
	}
	defer closePubs()

	recorder, err := app.NewRecorder(cfg, clients, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("failed to init metrics: %v", err)
	}

	p := persist.New(store, guard, pubs.Responses, recorder, persist.Config{
		RoutingKey: cfg.RoutingKey,
		Timeout:    cfg.OperationTimeout,
		Location:   cfg.Location(),
	})

	// long-running consumers push buffered metrics in the background
	if cw, ok := recorder.(*metrics.CloudWatch); ok && (cfg.RunLocal || cfg.QueueBackend == config.BackendKafka) {
		go cw.Run(ctx, metrics.DefaultFlushInterval)
		defer metrics.Flush(context.Background(), recorder)
	}

	switch {
	case cfg.QueueBackend == config.BackendKafka:
		err = runKafka(ctx, cfg, pubs.DeadLetter, p.Handle)
	case cfg.RunLocal:
		// optionally process a single message body given in LOCAL_SQS_BODY, for quick checks
		if body := os.Getenv("LOCAL_SQS_BODY"); body != "" {
			resp, _ := NewProcessor(p.Handle, recorder).Handle(ctx, events.SQSEvent{
				Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
			})
			out, _ := json.Marshal(resp)
			log.Printf("[worker] local result %s", out)
			return
		}
		err = runSQS(ctx, cfg, clients, p.Handle)
	default:
		lambda.Start(NewProcessor(p.Handle, recorder).Handle)
		return
	}
	if err != nil {
		log.Fatalf("worker stopped: %v", err)
	}
	log.Printf("[worker] shut down")
}

// runSQS long-polls the request queue with WORKER_CONCURRENCY consumers.
func runSQS(ctx context.Context, cfg *config.Config, clients *aws.AWSClients, handle queue.Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		c := aws.NewConsumer(clients.SQS, cfg.RequestQueueURL)
		g.Go(func() error { return c.Run(ctx, handle) })
	}
	log.Printf("[worker] consuming %s with %d consumers", cfg.RequestQueueURL, cfg.WorkerConcurrency)
	return g.Wait()
}

// runKafka starts WORKER_CONCURRENCY members of the consumer group.
func runKafka(ctx context.Context, cfg *config.Config, deadLetter queue.Publisher, handle queue.Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		c := queue.NewKafkaConsumer(queue.KafkaConsumerConfig{
			Brokers:     cfg.KafkaBrokers,
			Topic:       cfg.RequestTopic,
			GroupID:     cfg.ConsumerGroup,
			MaxAttempts: cfg.MaxDeliveryAttempts,
		}, deadLetter)
		g.Go(func() error {
			defer func() {
				if err := c.Close(); err != nil {
					log.Printf("[worker] close kafka reader: %v", err)
				}
			}()
			return c.Run(ctx, handle)
		})
	}
	log.Printf("[worker] consuming topic=%s group=%s with %d readers", cfg.RequestTopic, cfg.ConsumerGroup, cfg.WorkerConcurrency)
	return g.Wait()
}
