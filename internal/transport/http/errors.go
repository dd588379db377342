package httptransport

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"freightflow/backend/internal/domain"
)

// 通用错误消息
const (
	MsgInvalidRequest      = "请求参数格式错误"
	MsgInvalidJSON         = "JSON格式错误"
	MsgAuthRequired        = "需要有效的身份凭证"
	MsgRoleForbidden       = "当前身份无权以该角色访问"
	MsgNotFound            = "资源不存在"
	MsgUpstreamUnavailable = "依赖服务暂不可用，请稍后重试"
	MsgRequestCanceled     = "请求已取消"
	MsgInternalError       = "服务器内部错误"
)

// statusClientClosedRequest 客户端在响应前断开
const statusClientClosedRequest = 499

// handleError 把业务错误映射为 HTTP 状态码与统一响应
func handleError(c *gin.Context, err error) {
	_ = c.Error(err)

	var ve *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		Error(c, http.StatusUnauthorized, MsgAuthRequired)
	case errors.As(err, &ve):
		ValidationFailed(c, ve)
	case errors.Is(err, domain.ErrForbiddenRole):
		Error(c, http.StatusForbidden, MsgRoleForbidden)
	case errors.Is(err, domain.ErrNotFound):
		Error(c, http.StatusNotFound, MsgNotFound)
	case errors.Is(err, domain.ErrUpstreamUnavailable), errors.Is(err, context.DeadlineExceeded):
		Error(c, http.StatusServiceUnavailable, MsgUpstreamUnavailable)
	case errors.Is(err, context.Canceled):
		Error(c, statusClientClosedRequest, MsgRequestCanceled)
	default:
		Error(c, http.StatusInternalServerError, MsgInternalError)
	}
}
