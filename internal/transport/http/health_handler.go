package httptransport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"freightflow/backend/internal/health"
)

// HealthHandler 健康检查端点
type HealthHandler struct {
	aggregator *health.Aggregator
	collector  *health.Collector
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(aggregator *health.Aggregator, collector *health.Collector) *HealthHandler {
	return &HealthHandler{aggregator: aggregator, collector: collector}
}

// DetailedReport /health/detailed 的响应
type DetailedReport struct {
	health.Report
	Metrics     health.DetailedMetrics `json:"metrics"`
	Timestamp   time.Time              `json:"timestamp"`
	Version     string                 `json:"version"`
	Environment string                 `json:"environment"`
}

func reportStatus(r health.Report) int {
	if r.Healthy() {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

// Check godoc
// @Summary 健康检查
// @Description 聚合全部健康指标，任一指标不健康时返回 503
// @Tags Health
// @Produce json
// @Success 200 {object} health.Report
// @Failure 503 {object} health.Report
// @Router /health [get]
func (h *HealthHandler) Check(c *gin.Context) {
	report := h.aggregator.Check(c.Request.Context())
	c.JSON(reportStatus(report), report)
}

// Detailed godoc
// @Summary 详细健康检查
// @Description 健康报告附带数据库、系统与应用运行指标
// @Tags Health
// @Produce json
// @Success 200 {object} DetailedReport
// @Failure 503 {object} DetailedReport
// @Router /health/detailed [get]
func (h *HealthHandler) Detailed(c *gin.Context) {
	ctx := c.Request.Context()
	report := h.aggregator.Check(ctx)
	c.JSON(reportStatus(report), DetailedReport{
		Report:      report,
		Metrics:     h.collector.Detailed(ctx),
		Timestamp:   time.Now().UTC(),
		Version:     h.collector.Version(),
		Environment: h.collector.Environment(),
	})
}
