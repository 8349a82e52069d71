// Package app builds the configured backends shared by the api and the worker.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/imrishuroy/go-idempotent-payflow/internal/aws"
	"github.com/imrishuroy/go-idempotent-payflow/internal/config"
	"github.com/imrishuroy/go-idempotent-payflow/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-payflow/internal/metrics"
	"github.com/imrishuroy/go-idempotent-payflow/internal/payments"
	"github.com/imrishuroy/go-idempotent-payflow/internal/queue"
)

// Cleanup releases a backend's connections.
type Cleanup func()

func noop() {}

// NewGuard builds the idempotency guard on the configured key store.
func NewGuard(ctx context.Context, cfg *config.Config, clients *aws.AWSClients) (*idempotency.Guard, Cleanup, error) {
	var store idempotency.KeyStore
	cleanup := Cleanup(noop)

	switch cfg.GuardBackend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  cfg.OperationTimeout,
			ReadTimeout:  cfg.OperationTimeout,
			WriteTimeout: cfg.OperationTimeout,
		})
		pingCtx, cancel := context.WithTimeout(ctx, cfg.OperationTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		store = idempotency.NewRedisStore(rdb)
		cleanup = func() { _ = rdb.Close() }
	case config.BackendDynamoDB:
		store = idempotency.NewDynamoStore(clients.DynamoDB, cfg.IdempotencyTable)
	default:
		return nil, nil, fmt.Errorf("unknown guard backend %q", cfg.GuardBackend)
	}

	return idempotency.NewGuard(store, cfg.GuardTTL, cfg.Location()), cleanup, nil
}

// NewStore builds the system of record. The Postgres table is created if missing.
func NewStore(ctx context.Context, cfg *config.Config, clients *aws.AWSClients) (payments.Store, Cleanup, error) {
	switch cfg.StoreBackend {
	case config.BackendDynamoDB:
		return payments.NewDynamoStore(clients.DynamoDB, cfg.PaymentsTable), noop, nil
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := payments.NewPostgresStore(pool, cfg.PaymentsTable)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Publishers are the outbound queue clients.
type Publishers struct {
	Requests   queue.Publisher
	Responses  queue.Publisher
	DeadLetter queue.Publisher // kafka only
}

// NewPublishers builds the request, response and (for Kafka) dead-letter publishers.
func NewPublishers(cfg *config.Config, clients *aws.AWSClients) (*Publishers, Cleanup, error) {
	switch cfg.QueueBackend {
	case config.BackendSQS:
		return &Publishers{
			Requests:  aws.NewPublisher(clients.SQS, cfg.RequestQueueURL),
			Responses: aws.NewPublisher(clients.SQS, cfg.ResponseQueueURL),
		}, noop, nil
	case config.BackendKafka:
		req := queue.NewKafkaPublisher(cfg.KafkaBrokers, cfg.RequestTopic)
		resp := queue.NewKafkaPublisher(cfg.KafkaBrokers, cfg.ResponseTopic)
		dlq := queue.NewKafkaPublisher(cfg.KafkaBrokers, cfg.DeadLetterTopic)
		cleanup := func() {
			for _, p := range []*queue.KafkaPublisher{req, resp, dlq} {
				if err := p.Close(); err != nil {
					log.Printf("[app] close kafka writer: %v", err)
				}
			}
		}
		return &Publishers{Requests: req, Responses: resp, DeadLetter: dlq}, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}

// NewRecorder builds the metrics recorder. reg is used for the Prometheus backend.
func NewRecorder(cfg *config.Config, clients *aws.AWSClients, reg prometheus.Registerer) (metrics.Recorder, error) {
	switch cfg.MetricsBackend {
	case config.BackendPrometheus:
		return metrics.NewPrometheus(reg, cfg.MetricsNamespace)
	case config.BackendCloudWatch:
		return metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace), nil
	case config.BackendNone:
		return metrics.Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown metrics backend %q", cfg.MetricsBackend)
	}
}
