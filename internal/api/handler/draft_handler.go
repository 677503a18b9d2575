package handler

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/sale-promotion/internal/api/middleware"
	"github.com/d60-Lab/sale-promotion/pkg/response"
)

// SaveDraft 保存草稿：首次保存创建，之后覆盖 payload
// @Summary 保存草稿
// @Tags 草稿
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param draftKey path string true "草稿 key"
// @Param payload body object true "listing 字段"
// @Success 200 {object} response.Response{data=model.Draft}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /drafts/{draftKey} [put]
func (h *Handler) SaveDraft(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil || !json.Valid(raw) {
		response.BadRequest(c, "body must be a JSON object")
		return
	}
	d, created, err := h.drafts.Save(c.Request.Context(), middleware.UserID(c), c.Param("draftKey"), raw)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"created": created, "draft": d})
}

// GetDraft 读取自己的草稿
// @Summary 读取草稿
// @Tags 草稿
// @Produce json
// @Security BearerAuth
// @Param draftKey path string true "草稿 key"
// @Success 200 {object} response.Response{data=model.Draft}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /drafts/{draftKey} [get]
func (h *Handler) GetDraft(c *gin.Context) {
	d, err := h.drafts.Get(c.Request.Context(), middleware.UserID(c), c.Param("draftKey"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, d)
}
