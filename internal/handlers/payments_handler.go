package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-idempotent-payflow/internal/payment"
	"github.com/imrishuroy/go-idempotent-payflow/internal/queue"
	"github.com/imrishuroy/go-idempotent-payflow/internal/validation"
)

// Submitter is the intake path behind the HTTP routes.
type Submitter interface {
	Submit(ctx context.Context, req payment.Request) (payment.Response, bool)
}

// HandlerConfig groups dependencies for the payments handler.
type HandlerConfig struct {
	Dispatcher Submitter
	Location   *time.Location
}

// RegisterPaymentRoutes registers the submission routes. Both paths behave identically.
func RegisterPaymentRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	h := submitHandler(cfg)
	r.POST("/payment/submit", h)
	r.POST("/api/payment/process", h)
}

func submitHandler(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		corr := c.GetHeader("X-Request-Id")
		if corr == "" {
			corr = uuid.NewString()
		}
		c.Header("X-Request-Id", corr)
		ctx := queue.WithCorrelationID(c.Request.Context(), corr)

		req, err := validation.DecodeRequest(c)
		if err != nil {
			log.Printf("[api] bad request body corr=%s: %v", corr, err)
			c.JSON(http.StatusBadRequest, payment.NewResponse("", payment.CodeJSONProcessing, "", time.Now().In(cfg.Location)))
			return
		}

		resp, isError := cfg.Dispatcher.Submit(ctx, req)
		if isError {
			c.JSON(http.StatusBadRequest, resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
