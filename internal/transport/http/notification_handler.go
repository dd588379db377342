package httptransport

import (
	"github.com/gin-gonic/gin"

	"freightflow/backend/internal/domain"
	"freightflow/backend/internal/service"
)

// NotificationHandler 通知分发与站内通知
type NotificationHandler struct {
	dispatcher    *service.NotificationDispatcher
	notifications *service.NotificationService
}

// NewNotificationHandler 创建通知处理器
func NewNotificationHandler(dispatcher *service.NotificationDispatcher, notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher, notifications: notifications}
}

// Dispatch godoc
// @Summary 分发通知
// @Description 同步向请求的渠道分发通知，返回每个渠道的结果；仅调度员可调用
// @Tags Notifications
// @Accept json
// @Produce json
// @Param request body domain.NotificationPayload true "通知内容"
// @Success 200 {object} Response{data=domain.DispatchResult}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /v1/notifications/dispatch [post]
func (h *NotificationHandler) Dispatch(c *gin.Context) {
	id, err := identityFor(c)
	if err != nil {
		handleError(c, err)
		return
	}
	if id.Role != domain.RoleDispatcher {
		handleError(c, domain.ErrForbiddenRole)
		return
	}

	var payload domain.NotificationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		handleError(c, domain.NewValidationError("body", "must be a JSON notification payload"))
		return
	}

	result, err := h.dispatcher.Send(c.Request.Context(), payload)
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, result)
}

// List godoc
// @Summary 我的站内通知
// @Tags Notifications
// @Produce json
// @Param cursor query string false "游标"
// @Param limit query int false "每页条数 1-100，默认 20"
// @Success 200 {object} Response{data=service.NotificationList}
// @Router /v1/notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	id, err := identityFor(c)
	if err != nil {
		handleError(c, err)
		return
	}
	q, err := bindFeedQuery(c)
	if err != nil {
		handleError(c, err)
		return
	}

	list, err := h.notifications.List(c.Request.Context(), id.UserID, domain.CursorQuery{Cursor: q.Cursor, Limit: q.Limit})
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, list)
}

// MarkRead godoc
// @Summary 标记通知已读
// @Tags Notifications
// @Produce json
// @Param id path string true "通知 ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /v1/notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := identityFor(c)
	if err != nil {
		handleError(c, err)
		return
	}

	if err := h.notifications.MarkRead(c.Request.Context(), id.UserID, c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	SuccessWithMsg(c, "已标记为已读", nil)
}

// MarkAllRead godoc
// @Summary 全部标记已读
// @Tags Notifications
// @Produce json
// @Success 200 {object} Response{data=object{updated=int}}
// @Router /v1/notifications/read-all [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	id, err := identityFor(c)
	if err != nil {
		handleError(c, err)
		return
	}

	n, err := h.notifications.MarkAllRead(c.Request.Context(), id.UserID)
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, gin.H{"updated": n})
}
