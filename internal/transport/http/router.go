package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "freightflow/backend/docs"
	"freightflow/backend/internal/auth"
	"freightflow/backend/internal/config"
	"freightflow/backend/internal/health"
	"freightflow/backend/internal/middleware"
	"freightflow/backend/internal/monitoring"
	"freightflow/backend/internal/service"
	"freightflow/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config        *config.Config
	Analytics     *service.AnalyticsService
	Feed          *service.FeedService
	Dispatcher    *service.NotificationDispatcher
	Notifications *service.NotificationService
	Preferences   *service.PreferenceService // 为空时不注册偏好接口
	Resolver      *auth.Resolver
	Aggregator    *health.Aggregator
	Collector     *health.Collector
	Checks        healthcheck.Handler // 为空时根据 Aggregator 创建
	Metrics       *monitoring.Metrics
	WebSocketHub  *websocket.Hub // 为空时不注册 /v1/ws
	Logger        *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, log)
	router.Use(monitor.PanicRecovery())
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins: deps.Config.CORS.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			auth.HeaderUserID, auth.HeaderTenantID, auth.HeaderUserRole,
		},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, MsgNotFound)
	})

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 健康检查与指标
	healthHandler := NewHealthHandler(deps.Aggregator, deps.Collector)
	checks := deps.Checks
	if checks == nil {
		checks = health.NewCheckHandler(deps.Aggregator)
	}
	router.GET("/health", healthHandler.Check)
	router.GET("/health/detailed", healthHandler.Detailed)
	router.GET("/health/live", gin.WrapF(checks.LiveEndpoint))
	router.GET("/health/ready", gin.WrapF(checks.ReadyEndpoint))
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	dashboardHandler := NewDashboardHandler(deps.Analytics, deps.Feed)
	notificationHandler := NewNotificationHandler(deps.Dispatcher, deps.Notifications)

	limiter := middleware.NewIPRateLimiter(deps.Config.Server.RateLimit, deps.Config.Server.RateBurst, deps.Metrics)
	identity := middleware.NewIdentityAuth(deps.Resolver, log)

	// V1 API
	v1 := router.Group("/v1")
	v1.Use(limiter.Middleware())
	{
		// WebSocket 握手通过 token 查询参数认证，单独处理 401
		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub, func(c *gin.Context) (string, error) {
				id, err := deps.Resolver.Resolve(c.Request)
				if err != nil {
					return "", err
				}
				return id.UserID, nil
			}))
		}

		authed := v1.Group("")
		authed.Use(identity.Require())
		{
			// ========== Dashboard Routes ==========
			authed.GET("/dashboard/analytics", dashboardHandler.GetAnalytics)
			authed.GET("/activity", dashboardHandler.ListActivity)

			// ========== Shipment Routes ==========
			authed.GET("/shipments/recent", dashboardHandler.ListRecentShipments)
			authed.GET("/shipments/:id", dashboardHandler.GetShipment)

			// ========== Notification Routes ==========
			authed.POST("/notifications/dispatch", notificationHandler.Dispatch)
			authed.GET("/notifications", notificationHandler.List)
			authed.POST("/notifications/read-all", notificationHandler.MarkAllRead)
			authed.POST("/notifications/:id/read", notificationHandler.MarkRead)
			if deps.Preferences != nil {
				preferenceHandler := NewPreferenceHandler(deps.Preferences)
				authed.GET("/notifications/preferences", preferenceHandler.List)
				authed.PUT("/notifications/preferences", preferenceHandler.Update)
			}
		}
	}

	return router
}
