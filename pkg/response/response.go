package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/sale-promotion/pkg/logger"
)

// Response 统一响应结构
type Response struct {
	OK      bool        `json:"ok"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

const (
	CodeValidation = "VALIDATION_ERROR"
	CodeInternal   = "INTERNAL_ERROR"
)

// Success 200 + data
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{OK: true, Data: data})
}

// OK 200，字段平铺在顶层：{"ok":true, ...fields}
func OK(c *gin.Context, fields gin.H) {
	body := gin.H{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// Fail 错误响应，code 为稳定的机器可读错误码
func Fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{OK: false, Code: code, Message: message})
}

func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, CodeValidation, message)
}

func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func Forbidden(c *gin.Context, message string) {
	Fail(c, http.StatusForbidden, "FORBIDDEN", message)
}

// InternalError 不向调用方暴露内部错误细节
func InternalError(c *gin.Context, err error) {
	logger.Error("internal error", zap.String("path", c.FullPath()), zap.Error(err))
	Fail(c, http.StatusInternalServerError, CodeInternal, "internal error")
}
