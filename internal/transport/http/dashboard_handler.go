package httptransport

import (
	"github.com/gin-gonic/gin"

	"freightflow/backend/internal/auth"
	"freightflow/backend/internal/domain"
	"freightflow/backend/internal/middleware"
	"freightflow/backend/internal/service"
)

// DashboardHandler 看板、动态流与运单查询
type DashboardHandler struct {
	analytics *service.AnalyticsService
	feed      *service.FeedService
}

// NewDashboardHandler 创建看板处理器
func NewDashboardHandler(analytics *service.AnalyticsService, feed *service.FeedService) *DashboardHandler {
	return &DashboardHandler{analytics: analytics, feed: feed}
}

// feedQuery 列表查询参数
type feedQuery struct {
	Role     string `form:"role"`
	Cursor   string `form:"cursor"`
	Limit    int    `form:"limit"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}

// bindFeedQuery 解析查询参数，非整数的分页参数视为校验错误
func bindFeedQuery(c *gin.Context) (feedQuery, error) {
	var q feedQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return feedQuery{}, domain.NewValidationError("query", "page, pageSize and limit must be integers")
	}
	return q, nil
}

// scopeFor 根据身份与 role 参数得到数据范围
func scopeFor(c *gin.Context, requestedRole string) (domain.Scope, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return domain.Scope{}, domain.ErrUnauthenticated
	}
	return id.Scope(requestedRole)
}

// identityFor 读取已解析的身份
func identityFor(c *gin.Context) (auth.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return auth.Identity{}, domain.ErrUnauthenticated
	}
	return id, nil
}

// GetAnalytics godoc
// @Summary 获取角色看板
// @Description 返回当前身份按角色聚合的 KPI 与图表数据
// @Tags Dashboard
// @Produce json
// @Param role query string false "shipper | carrier | dispatcher"
// @Success 200 {object} Response{data=domain.DashboardAnalytics}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Failure 503 {object} Response
// @Router /v1/dashboard/analytics [get]
func (h *DashboardHandler) GetAnalytics(c *gin.Context) {
	scope, err := scopeFor(c, c.Query("role"))
	if err != nil {
		handleError(c, err)
		return
	}

	analytics, err := h.analytics.Dashboard(c.Request.Context(), scope)
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, analytics)
}

// ListActivity godoc
// @Summary 动态流
// @Description 游标分页读取范围内的动态，按时间倒序
// @Tags Dashboard
// @Produce json
// @Param role query string false "角色"
// @Param cursor query string false "上一页返回的 nextCursor"
// @Param limit query int false "每页条数 1-100，默认 20"
// @Success 200 {object} Response{data=domain.CursorPage[domain.ActivityItem]}
// @Failure 400 {object} Response
// @Router /v1/activity [get]
func (h *DashboardHandler) ListActivity(c *gin.Context) {
	q, err := bindFeedQuery(c)
	if err != nil {
		handleError(c, err)
		return
	}
	scope, err := scopeFor(c, q.Role)
	if err != nil {
		handleError(c, err)
		return
	}

	page, err := h.feed.Activity(c.Request.Context(), scope, domain.CursorQuery{Cursor: q.Cursor, Limit: q.Limit})
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, page)
}

// ListRecentShipments godoc
// @Summary 最近运单
// @Description 默认偏移分页；携带 cursor 或 limit 时使用游标分页
// @Tags Shipments
// @Produce json
// @Param role query string false "角色"
// @Param page query int false "页码，从 1 开始"
// @Param pageSize query int false "每页条数 1-100，默认 10"
// @Param cursor query string false "游标"
// @Param limit query int false "游标模式每页条数"
// @Success 200 {object} Response{data=domain.Page[domain.RecentShipment]}
// @Failure 400 {object} Response
// @Router /v1/shipments/recent [get]
func (h *DashboardHandler) ListRecentShipments(c *gin.Context) {
	q, err := bindFeedQuery(c)
	if err != nil {
		handleError(c, err)
		return
	}
	scope, err := scopeFor(c, q.Role)
	if err != nil {
		handleError(c, err)
		return
	}

	_, hasCursor := c.GetQuery("cursor")
	_, hasLimit := c.GetQuery("limit")
	if hasCursor || hasLimit {
		page, err := h.feed.RecentShipmentsCursor(c.Request.Context(), scope, domain.CursorQuery{Cursor: q.Cursor, Limit: q.Limit})
		if err != nil {
			handleError(c, err)
			return
		}
		Success(c, page)
		return
	}

	page, err := h.feed.RecentShipments(c.Request.Context(), scope, domain.OffsetQuery{Page: q.Page, PageSize: q.PageSize})
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, page)
}

// GetShipment godoc
// @Summary 运单详情
// @Tags Shipments
// @Produce json
// @Param id path string true "运单 ID"
// @Param role query string false "角色"
// @Success 200 {object} Response{data=domain.RecentShipment}
// @Failure 404 {object} Response
// @Router /v1/shipments/{id} [get]
func (h *DashboardHandler) GetShipment(c *gin.Context) {
	scope, err := scopeFor(c, c.Query("role"))
	if err != nil {
		handleError(c, err)
		return
	}

	shipment, err := h.feed.Shipment(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, shipment)
}
