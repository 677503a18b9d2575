package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/sale-promotion/pkg/response"
)

// ListUnprocessedEvents 未处理/出错的账本条目
// @Summary 未处理支付事件
// @Tags 运维
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /admin/events [get]
func (h *Handler) ListUnprocessedEvents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	list, total, err := h.finalizer.ListUnprocessed(c.Request.Context(), page, pageSize)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "total": total, "list": list})
}

// ReplayEvent 人工重放一条未处理事件
// @Summary 重放支付事件
// @Tags 运维
// @Produce json
// @Security BearerAuth
// @Param eventId path string true "事件ID"
// @Success 200 {object} response.Response{data=service.FinalizeResult}
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /admin/events/{eventId}/replay [post]
func (h *Handler) ReplayEvent(c *gin.Context) {
	res, err := h.finalizer.Replay(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}
