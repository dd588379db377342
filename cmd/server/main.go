package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"freightflow/backend/internal/auth"
	"freightflow/backend/internal/cache"
	"freightflow/backend/internal/config"
	"freightflow/backend/internal/events"
	"freightflow/backend/internal/health"
	"freightflow/backend/internal/logger"
	"freightflow/backend/internal/monitoring"
	"freightflow/backend/internal/notify"
	"freightflow/backend/internal/pool"
	"freightflow/backend/internal/security"
	"freightflow/backend/internal/service"
	"freightflow/backend/internal/smtp"
	"freightflow/backend/internal/storage"
	"freightflow/backend/internal/storage/memory"
	"freightflow/backend/internal/storage/postgres"
	"freightflow/backend/internal/storage/redis"
	httptransport "freightflow/backend/internal/transport/http"
	"freightflow/backend/internal/websocket"
)

// main 启动看板聚合与通知分发服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.New(logger.Options{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
		MaxSizeMB:   100,
		MaxBackups:  3,
		MaxAgeDays:  28,
		Compress:    true,
		Service:     "freightflow-backend",
		Environment: cfg.App.Environment,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	startedAt := time.Now()
	log.Info("starting freightflow server",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("auth_required", cfg.Auth.Required),
	)

	// 初始化监控系统
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	// 初始化存储层
	backend, err := initializeStorage(cfg, metrics, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	store := backend.store

	// 初始化缓存（Redis 优先，否则进程内缓存）
	var (
		cacheStore  cache.Store
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled {
		redisClient, err = redis.New(&cfg.Redis, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		cacheStore = redisClient
	} else {
		local := cache.NewLocalCache(1024, max(cfg.Dashboard.CacheTTL, time.Minute))
		defer local.Close()
		cacheStore = local
		log.Info("redis disabled, using in-process cache")
	}
	dashCache := cache.NewDashboardCache(cacheStore, cfg.Dashboard.CacheTTL, log)

	// WebSocket Hub
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log)
	wsHub.OnConnectionsChange(metrics.UpdateWebSocketClients)

	// 通知渠道
	channels := []notify.Channel{notify.NewInAppChannel(store, wsHub, log)}
	if cfg.SMTP.Host != "" {
		limiter := smtp.NewConnectionLimiter(4, cfg.SMTP.RateLimit)
		mode, err := smtp.ParseTLSMode(cfg.SMTP.TLS)
		if err != nil {
			log.Fatal("invalid SMTP TLS mode", zap.Error(err))
		}
		sender := smtp.NewSender(cfg.SMTP.Addr(), cfg.SMTP.Username, cfg.SMTP.Password, limiter, smtp.WithTLSMode(mode))
		channels = append(channels, notify.NewEmailChannel(sender, cfg.SMTP.From, log))
		log.Info("email channel enabled", zap.String("relay", cfg.SMTP.Addr()), zap.String("tls", string(mode)))
	} else {
		log.Warn("SMTP relay not configured, email channel disabled")
	}

	workerPool := pool.NewWorkerPool(cfg.Notification.Workers, cfg.Notification.QueueSize, log)
	dispatcher := service.NewNotificationDispatcher(cfg.Notification, log, channels,
		service.WithWorkerPool(workerPool),
		service.WithMetrics(metrics),
		service.WithContentFilter(security.NewContentFilter()),
	)

	renderer, err := notify.NewRenderer(notify.DefaultTemplates)
	if err != nil {
		log.Fatal("failed to compile notification templates", zap.Error(err))
	}
	preferenceService := service.NewPreferenceService(store)
	bridge := events.NewBridge(store, renderer, dispatcher, metrics, log, events.WithPreferences(preferenceService))

	// 初始化服务层
	analyticsService := service.NewAnalyticsService(store, cfg.Dashboard, dashCache, metrics, log)
	feedService := service.NewFeedService(store, store, metrics)
	notificationService := service.NewNotificationService(store)

	// 初始化健康检查
	aggregator := health.NewAggregator(cfg.Health.IndicatorTimeout, log,
		health.DatabaseIndicator(store),
		health.MemoryIndicator(health.MemoryThresholds{
			HeapWarningBytes:         cfg.Health.HeapWarningBytes,
			HeapCriticalBytes:        cfg.Health.HeapCriticalBytes,
			SystemMemWarningPercent:  cfg.Health.SystemMemWarningPercent,
			SystemMemCriticalPercent: cfg.Health.SystemMemCriticalPercent,
		}, health.DefaultMemorySource()),
		health.UptimeIndicator(startedAt, cfg.Health.MinUptime, time.Now),
	)
	if redisClient != nil {
		aggregator.Register(health.CacheIndicator(redisClient))
	}
	collector := health.NewCollector(startedAt, cfg.App.Version, cfg.App.Environment, log, backend.collectorOpts...)

	// 初始化告警系统
	alertManager := monitoring.NewAlertManager(log)
	alertManager.AddReceiver(monitoring.NewLogAlertReceiver(log))
	if cfg.Health.AlertWebhookURL != "" {
		alertManager.AddReceiver(monitoring.NewWebhookAlertReceiver(cfg.Health.AlertWebhookURL, log))
	}
	scheduler := monitoring.NewHealthScheduler(aggregator, metrics, alertManager, startedAt, cfg.Health.CheckInterval, log)
	for _, ind := range aggregator.Indicators() {
		level := monitoring.AlertLevelWarning
		if ind.Key == "database" {
			level = monitoring.AlertLevelCritical
		}
		alertManager.AddRule(monitoring.IndicatorDownRule(ind.Key, level, scheduler.Latest))
	}
	if cfg.Health.HeapWarningBytes > 0 {
		alertManager.AddRule(monitoring.HighMemoryUsageRule(cfg.Health.HeapWarningBytes, monitoring.HeapAlloc))
	}

	log.Info("monitoring system initialized", zap.Int("indicators", len(aggregator.Indicators())))

	// 创建 HTTP 服务器
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:        cfg,
		Analytics:     analyticsService,
		Feed:          feedService,
		Dispatcher:    dispatcher,
		Notifications: notificationService,
		Preferences:   preferenceService,
		Resolver:      auth.NewResolver(cfg.Auth),
		Aggregator:    aggregator,
		Collector:     collector,
		Metrics:       metrics,
		WebSocketHub:  wsHub,
		Logger:        log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// 已入队的通知在关闭阶段继续投递，每个渠道仍受超时约束
	workerPool.Start(context.WithoutCancel(groupCtx))

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 周期性健康检查与告警 goroutine
	group.Go(func() error {
		return scheduler.Start(groupCtx)
	})

	// 领域事件订阅 goroutine，订阅失败只记录日志并退避重试
	if redisClient != nil {
		group.Go(func() error {
			return bridge.Run(groupCtx, redisClient, cfg.Redis.EventChannel)
		})
	} else {
		log.Warn("redis disabled, domain event bridge not started")
	}

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		workerPool.Stop()
		log.Info("notification queue drained")

		backend.close(log)
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.Warn("redis close warning", zap.Error(err))
			}
		}

		log.Info("servers stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// storageBackend 存储层及其附属的统计来源
type storageBackend struct {
	store         storage.Store
	catalog       *postgres.Client
	collectorOpts []health.CollectorOption
}

// initializeStorage 按配置选择数据库或内存存储
func initializeStorage(cfg *config.Config, metrics *monitoring.Metrics, log *zap.Logger) (*storageBackend, error) {
	if cfg.Database.Type == "" {
		log.Info("using memory storage (development mode)")
		return &storageBackend{store: memory.NewStore()}, nil
	}

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Info("using database storage", zap.String("type", db.Dialect()))

	backend := &storageBackend{store: db}
	backend.collectorOpts = append(backend.collectorOpts, health.WithDBStats(db.Dialect(), func() (sql.DBStats, error) {
		sqlDB, err := db.SQLDB()
		if err != nil {
			return sql.DBStats{}, err
		}
		stats := sqlDB.Stats()
		metrics.UpdateDatabaseConnections(stats.OpenConnections)
		return stats, nil
	}))

	// PostgreSQL 额外提供目录统计
	if cfg.Database.Type == "postgres" {
		catalog, err := postgres.New(&cfg.Database, log)
		if err != nil {
			log.Warn("catalog statistics unavailable", zap.Error(err))
		} else {
			backend.catalog = catalog
			backend.collectorOpts = append(backend.collectorOpts, health.WithCatalogStats(func(ctx context.Context) (any, error) {
				return catalog.Stats(ctx)
			}))
		}
	}
	return backend, nil
}

// close 关闭存储连接
func (b *storageBackend) close(log *zap.Logger) {
	if b.catalog != nil {
		b.catalog.Close()
	}
	if err := b.store.Close(); err != nil {
		log.Warn("storage close warning", zap.Error(err))
	}
}
