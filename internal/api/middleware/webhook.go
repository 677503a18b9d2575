package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/sale-promotion/internal/payment"
	"github.com/d60-Lab/sale-promotion/pkg/logger"
	"github.com/d60-Lab/sale-promotion/pkg/response"
)

const maxWebhookBody = 1 << 20

// WebhookSignature 验证处理器签名，通过后把原始 body 放回请求
func WebhookSignature(secret string, tolerance time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.CodeValidation, "unreadable body")
			return
		}
		if err := payment.VerifySignature(body, c.GetHeader(payment.SignatureHeader), secret, tolerance, time.Now()); err != nil {
			logger.Warn("webhook signature rejected", zap.String("remote", c.ClientIP()), zap.Error(err))
			response.Unauthorized(c, "invalid signature")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}
