// Package config loads service settings from the environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Backends.
const (
	BackendRedis      = "redis"
	BackendDynamoDB   = "dynamodb"
	BackendPostgres   = "postgres"
	BackendSQS        = "sqs"
	BackendKafka      = "kafka"
	BackendPrometheus = "prometheus"
	BackendCloudWatch = "cloudwatch"
	BackendNone       = "none"
)

// Config is shared by the api and the worker. Each field maps to the upper-cased env var of its key.
type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`
	RunLocal bool   `mapstructure:"run_local"`
	Timezone string `mapstructure:"timezone"`

	GuardBackend     string        `mapstructure:"guard_backend"`
	GuardTTL         time.Duration `mapstructure:"guard_ttl"`
	RedisAddr        string        `mapstructure:"redis_addr"`
	RedisPassword    string        `mapstructure:"redis_password"`
	RedisDB          int           `mapstructure:"redis_db"`
	IdempotencyTable string        `mapstructure:"idempotency_table"`

	StoreBackend  string `mapstructure:"store_backend"`
	PaymentsTable string `mapstructure:"payments_table"`
	DatabaseURL   string `mapstructure:"database_url"`

	QueueBackend        string   `mapstructure:"queue_backend"`
	RequestQueueURL     string   `mapstructure:"request_queue_url"`
	ResponseQueueURL    string   `mapstructure:"response_queue_url"`
	RoutingKey          string   `mapstructure:"routing_key"`
	KafkaBrokers        []string `mapstructure:"kafka_brokers"`
	RequestTopic        string   `mapstructure:"request_topic"`
	ResponseTopic       string   `mapstructure:"response_topic"`
	DeadLetterTopic     string   `mapstructure:"dead_letter_topic"`
	ConsumerGroup       string   `mapstructure:"consumer_group"`
	MaxDeliveryAttempts int      `mapstructure:"max_delivery_attempts"`

	WorkerConcurrency int           `mapstructure:"worker_concurrency"`
	OperationTimeout  time.Duration `mapstructure:"operation_timeout"`

	MetricsBackend   string `mapstructure:"metrics_backend"`
	MetricsNamespace string `mapstructure:"metrics_namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("run_local", false)
	v.SetDefault("timezone", "UTC")

	v.SetDefault("guard_backend", BackendRedis)
	v.SetDefault("guard_ttl", 24*time.Hour)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("idempotency_table", "payment-guard")

	v.SetDefault("store_backend", BackendDynamoDB)
	v.SetDefault("payments_table", "payments")
	v.SetDefault("database_url", "")

	v.SetDefault("queue_backend", BackendSQS)
	v.SetDefault("request_queue_url", "")
	v.SetDefault("response_queue_url", "")
	v.SetDefault("routing_key", "paymentRoutingKey")
	v.SetDefault("kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("request_topic", "payment-requests")
	v.SetDefault("response_topic", "payment-responses")
	v.SetDefault("dead_letter_topic", "payment-requests-dlq")
	v.SetDefault("consumer_group", "payment-persister")
	v.SetDefault("max_delivery_attempts", 5)

	v.SetDefault("worker_concurrency", 4)
	v.SetDefault("operation_timeout", 5*time.Second)

	v.SetDefault("metrics_backend", BackendPrometheus)
	v.SetDefault("metrics_namespace", "payment")
}

// Load reads defaults, then the YAML file named by CONFIG_FILE (if set), then the environment.
// The result is validated.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown backends and missing backend-specific settings.
func (c *Config) Validate() error {
	var errs []error

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}

	switch c.GuardBackend {
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required for the redis guard"))
		}
	case BackendDynamoDB:
		if c.IdempotencyTable == "" {
			errs = append(errs, errors.New("idempotency_table is required for the dynamodb guard"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown guard_backend %q", c.GuardBackend))
	}

	switch c.StoreBackend {
	case BackendDynamoDB:
		if c.PaymentsTable == "" {
			errs = append(errs, errors.New("payments_table is required for the dynamodb store"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("database_url is required for the postgres store"))
		}
		if c.PaymentsTable == "" {
			errs = append(errs, errors.New("payments_table is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store_backend %q", c.StoreBackend))
	}

	switch c.QueueBackend {
	case BackendSQS:
		if c.RequestQueueURL == "" || c.ResponseQueueURL == "" {
			errs = append(errs, errors.New("request_queue_url and response_queue_url are required for sqs"))
		}
	case BackendKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("kafka_brokers is required for kafka"))
		}
		if c.RequestTopic == "" || c.ResponseTopic == "" || c.DeadLetterTopic == "" || c.ConsumerGroup == "" {
			errs = append(errs, errors.New("kafka topics and consumer_group are required for kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown queue_backend %q", c.QueueBackend))
	}

	switch c.MetricsBackend {
	case BackendPrometheus, BackendCloudWatch, BackendNone:
	default:
		errs = append(errs, fmt.Errorf("unknown metrics_backend %q", c.MetricsBackend))
	}

	if c.OperationTimeout <= 0 {
		errs = append(errs, errors.New("operation_timeout must be positive"))
	}
	if c.WorkerConcurrency < 1 {
		errs = append(errs, errors.New("worker_concurrency must be at least 1"))
	}
	if c.MaxDeliveryAttempts < 1 {
		errs = append(errs, errors.New("max_delivery_attempts must be at least 1"))
	}

	return errors.Join(errs...)
}

// Location returns the zone used to compute "today". Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// splitList handles a single comma-separated entry coming from an env var.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
