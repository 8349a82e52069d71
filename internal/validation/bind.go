package validation

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/imrishuroy/go-idempotent-payflow/internal/payment"
)

// DecodeRequest binds the JSON body onto a defaulted request. It does not validate: the
// Dispatcher owns validation so that every entry point applies the same rules.
func DecodeRequest(c *gin.Context) (payment.Request, error) {
	req := payment.NewRequest()
	if err := c.ShouldBindWith(&req, binding.JSON); err != nil {
		return payment.Request{}, fmt.Errorf("decode payment request: %w", err)
	}
	return req, nil
}
