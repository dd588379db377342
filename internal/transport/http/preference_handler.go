package httptransport

import (
	"github.com/gin-gonic/gin"

	"freightflow/backend/internal/domain"
	"freightflow/backend/internal/service"
)

// PreferenceHandler 通知偏好
type PreferenceHandler struct {
	preferences *service.PreferenceService
}

// NewPreferenceHandler 创建通知偏好处理器
func NewPreferenceHandler(preferences *service.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{preferences: preferences}
}

// UpdatePreferencesRequest 批量修改偏好请求
type UpdatePreferencesRequest struct {
	Preferences []domain.PreferenceUpdate `json:"preferences"`
}

// List godoc
// @Summary 我的通知偏好
// @Description 返回已保存的偏好，未出现的类型与渠道组合默认开启
// @Tags Notifications
// @Produce json
// @Success 200 {object} Response{data=[]domain.NotificationPreference}
// @Router /v1/notifications/preferences [get]
func (h *PreferenceHandler) List(c *gin.Context) {
	id, err := identityFor(c)
	if err != nil {
		handleError(c, err)
		return
	}

	prefs, err := h.preferences.List(c.Request.Context(), id.UserID)
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, prefs)
}

// Update godoc
// @Summary 修改通知偏好
// @Description 按 (type, channel) 开启或关闭事件通知
// @Tags Notifications
// @Accept json
// @Produce json
// @Param request body UpdatePreferencesRequest true "偏好修改"
// @Success 200 {object} Response{data=[]domain.NotificationPreference}
// @Failure 400 {object} Response
// @Router /v1/notifications/preferences [put]
func (h *PreferenceHandler) Update(c *gin.Context) {
	id, err := identityFor(c)
	if err != nil {
		handleError(c, err)
		return
	}

	var req UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, domain.NewValidationError("body", "must be a JSON preferences object"))
		return
	}

	prefs, err := h.preferences.Update(c.Request.Context(), id.UserID, req.Preferences)
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, prefs)
}
