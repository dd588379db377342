package monitoring

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
//
// 所有 Record/Update 方法在 nil 接收者上是空操作。
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 通知指标
	NotificationsTotal   *prometheus.CounterVec
	NotificationDuration *prometheus.HistogramVec
	NotificationsDropped prometheus.Counter
	DispatchQueueDepth   prometheus.Gauge

	// 看板与动态流指标
	DashboardComputeDuration *prometheus.HistogramVec
	DashboardCacheHits       *prometheus.CounterVec
	FeedRequestsTotal        *prometheus.CounterVec

	// 健康检查指标
	HealthIndicatorUp *prometheus.GaugeVec

	// 系统指标
	SystemUptime        prometheus.Gauge
	DatabaseConnections prometheus.Gauge
	MemoryUsage         prometheus.Gauge
	Goroutines          prometheus.Gauge
	WebSocketClients    prometheus.Gauge

	// 错误与限流指标
	ErrorsTotal     *prometheus.CounterVec
	PanicsTotal     prometheus.Counter
	RateLimitBlocks *prometheus.CounterVec
	EventsConsumed  *prometheus.CounterVec
}

// NewMetrics 创建监控指标并注册到 reg；reg 为 nil 时使用新的独立注册表
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freightflow_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "freightflow_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freightflow_notifications_total",
				Help: "Notification deliveries by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),

		NotificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "freightflow_notification_duration_seconds",
				Help:    "Channel delivery duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"channel"},
		),

		NotificationsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "freightflow_notifications_dropped_total",
				Help: "Notifications dropped because the dispatch queue was full or closed",
			},
		),

		DispatchQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "freightflow_dispatch_queue_depth",
				Help: "Notifications waiting in the dispatch queue",
			},
		),

		DashboardComputeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "freightflow_dashboard_compute_duration_seconds",
				Help:    "Dashboard aggregation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"role"},
		),

		DashboardCacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freightflow_dashboard_cache_total",
				Help: "Dashboard cache lookups by result",
			},
			[]string{"result"},
		),

		FeedRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freightflow_feed_requests_total",
				Help: "Feed requests by feed and pagination mode",
			},
			[]string{"feed", "mode"},
		),

		HealthIndicatorUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "freightflow_health_indicator_up",
				Help: "Health indicator status (1 = up, 0 = down)",
			},
			[]string{"indicator"},
		),

		SystemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "freightflow_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),

		DatabaseConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "freightflow_database_connections",
				Help: "Number of open database connections",
			},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "freightflow_memory_heap_bytes",
				Help: "Go heap allocation in bytes",
			},
		),

		Goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "freightflow_goroutines",
				Help: "Number of goroutines",
			},
		),

		WebSocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "freightflow_websocket_clients",
				Help: "Number of connected WebSocket clients",
			},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freightflow_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "freightflow_panics_total",
				Help: "Total number of recovered panics",
			},
		),

		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freightflow_rate_limit_blocks_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"limit_type"},
		),

		EventsConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freightflow_events_consumed_total",
				Help: "Domain events consumed by type and result",
			},
			[]string{"type", "result"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordNotification 记录一次渠道投递
func (m *Metrics) RecordNotification(channel, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(channel, outcome).Inc()
	m.NotificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordNotificationDropped 记录被丢弃的异步通知
func (m *Metrics) RecordNotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

// UpdateDispatchQueueDepth 更新分发队列深度
func (m *Metrics) UpdateDispatchQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.DispatchQueueDepth.Set(float64(depth))
}

// RecordDashboardCompute 记录看板计算耗时
func (m *Metrics) RecordDashboardCompute(role string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DashboardComputeDuration.WithLabelValues(role).Observe(duration.Seconds())
}

// RecordDashboardCache 记录看板缓存命中情况
func (m *Metrics) RecordDashboardCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.DashboardCacheHits.WithLabelValues(result).Inc()
}

// RecordFeedRequest 记录动态流请求
func (m *Metrics) RecordFeedRequest(feed, mode string) {
	if m == nil {
		return
	}
	m.FeedRequestsTotal.WithLabelValues(feed, mode).Inc()
}

// UpdateHealthIndicator 更新健康指标状态
func (m *Metrics) UpdateHealthIndicator(indicator string, up bool) {
	if m == nil {
		return
	}
	value := 0.0
	if up {
		value = 1
	}
	m.HealthIndicatorUp.WithLabelValues(indicator).Set(value)
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流拒绝
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	if m == nil {
		return
	}
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// RecordEvent 记录领域事件消费结果
func (m *Metrics) RecordEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.EventsConsumed.WithLabelValues(eventType, result).Inc()
}

// UpdateWebSocketClients 更新 WebSocket 连接数
func (m *Metrics) UpdateWebSocketClients(count int) {
	if m == nil {
		return
	}
	m.WebSocketClients.Set(float64(count))
}

// UpdateDatabaseConnections 更新数据库连接数
func (m *Metrics) UpdateDatabaseConnections(count int) {
	if m == nil {
		return
	}
	m.DatabaseConnections.Set(float64(count))
}

// UpdateRuntime 更新运行时指标
func (m *Metrics) UpdateRuntime(uptime time.Duration) {
	if m == nil {
		return
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.SystemUptime.Set(uptime.Seconds())
	m.MemoryUsage.Set(float64(mem.HeapAlloc))
	m.Goroutines.Set(float64(runtime.NumGoroutine()))
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
