package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/sale-promotion/internal/payment"
	"github.com/d60-Lab/sale-promotion/internal/service"
	"github.com/d60-Lab/sale-promotion/pkg/logger"
)

// PaymentWebhook 支付完成通知。签名通过后一律返回 200，
// body 中的 ok/error 仅用于观测，失败条目走人工 replay
// @Summary 支付回调
// @Tags 支付
// @Accept json
// @Produce json
// @Param X-Payment-Signature header string true "t=<unix>,v1=<hmac>"
// @Param event body payment.Event true "处理器事件"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} response.Response
// @Router /webhooks/payment [post]
func (h *Handler) PaymentWebhook(c *gin.Context) {
	var ev payment.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		logger.Warn("malformed payment event", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": "VALIDATION_ERROR"})
		return
	}
	res, err := h.finalizer.HandlePaymentEvent(c.Request.Context(), service.PaymentEvent{
		EventID:   ev.ID,
		Type:      ev.Type,
		PaymentID: ev.Data.Object.PaymentIntent,
		Metadata:  ev.Data.Object.Metadata,
	})
	if err != nil {
		_, code := errorCode(err)
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": code})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "outcome": res.Outcome})
}
