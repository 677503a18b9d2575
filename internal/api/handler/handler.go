package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/d60-Lab/sale-promotion/internal/service"
	"github.com/d60-Lab/sale-promotion/pkg/response"
)

// Handler HTTP 入口
type Handler struct {
	drafts    service.DraftService
	checkout  service.CheckoutService
	finalizer service.Finalizer
	db        *gorm.DB
}

func NewHandler(drafts service.DraftService, checkout service.CheckoutService, finalizer service.Finalizer, db *gorm.DB) *Handler {
	return &Handler{drafts: drafts, checkout: checkout, finalizer: finalizer, db: db}
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorTable = []errorMapping{
	{service.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
	{service.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{service.ErrDraftNotFound, http.StatusNotFound, "DRAFT_NOT_FOUND"},
	{service.ErrDraftNotActive, http.StatusConflict, "DRAFT_NOT_ACTIVE"},
	{service.ErrEventNotFound, http.StatusNotFound, "EVENT_NOT_FOUND"},
	{service.ErrEventAlreadyProcessed, http.StatusConflict, "EVENT_ALREADY_PROCESSED"},
	{service.ErrReplayConflict, http.StatusConflict, "REPLAY_CONFLICT"},
	{service.ErrProcessor, http.StatusBadGateway, "PROCESSOR_ERROR"},
	{service.ErrFinalization, http.StatusInternalServerError, "FINALIZATION_ERROR"},
}

// errorCode 把 service 错误映射为稳定的错误码
func errorCode(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.CodeInternal
}

func writeError(c *gin.Context, err error) {
	status, code := errorCode(err)
	if code == response.CodeInternal {
		response.InternalError(c, err)
		return
	}
	response.Fail(c, status, code, err.Error())
}
