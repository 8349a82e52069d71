package main

import (
	"context"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imrishuroy/go-idempotent-payflow/internal/app"
	"github.com/imrishuroy/go-idempotent-payflow/internal/aws"
	"github.com/imrishuroy/go-idempotent-payflow/internal/config"
	"github.com/imrishuroy/go-idempotent-payflow/internal/dispatch"
	"github.com/imrishuroy/go-idempotent-payflow/internal/handlers"
	"github.com/imrishuroy/go-idempotent-payflow/internal/metrics"
	"github.com/imrishuroy/go-idempotent-payflow/internal/validation"
)

func setupRouter(cfg handlers.HandlerConfig, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	handlers.RegisterPaymentRoutes(r, cfg)

	return r
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

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

	reg := prometheus.NewRegistry()
	recorder, err := app.NewRecorder(cfg, clients, reg)
	if err != nil {
		log.Fatalf("failed to init metrics: %v", err)
	}

	d := dispatch.New(validation.New(), guard, pubs.Requests, recorder, dispatch.Config{
		RoutingKey: cfg.RoutingKey,
		Timeout:    cfg.OperationTimeout,
		Location:   cfg.Location(),
	})

	r := setupRouter(handlers.HandlerConfig{Dispatcher: d, Location: cfg.Location()}, reg)

	// if RUN_LOCAL is true, run a local HTTP server for development.
	if cfg.RunLocal {
		if cw, ok := recorder.(*metrics.CloudWatch); ok {
			go cw.Run(context.Background(), metrics.DefaultFlushInterval)
		}
		log.Printf("running local server on %s", cfg.HTTPAddr)
		if err := r.Run(cfg.HTTPAddr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		resp, err := adapter.ProxyWithContext(ctx, req)
		metrics.Flush(ctx, recorder)
		return resp, err
	})
}
