package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/sale-promotion/internal/api/middleware"
	"github.com/d60-Lab/sale-promotion/internal/service"
	"github.com/d60-Lab/sale-promotion/pkg/response"
)

type publishRequest struct {
	DraftKey       string `json:"draftKey" binding:"required"`
	WantsPromotion bool   `json:"wantsPromotion"`
	Tier           string `json:"tier"`
}

// Publish 发布草稿：立即发布返回 saleId，推广发布返回 checkoutUrl
// @Summary 发布草稿
// @Tags 发布
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body publishRequest true "发布请求"
// @Success 200 {object} service.PublishResult
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /drafts/publish [post]
func (h *Handler) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.checkout.Publish(c.Request.Context(), service.PublishRequest{
		DraftKey:       req.DraftKey,
		WantsPromotion: req.WantsPromotion,
		Tier:           req.Tier,
		CallerID:       middleware.UserID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if res.SaleID != "" {
		response.OK(c, gin.H{"saleId": res.SaleID})
		return
	}
	response.OK(c, gin.H{
		"checkoutUrl": res.CheckoutURL,
		"sessionId":   res.SessionID,
		"promotionId": res.PromotionID,
	})
}
