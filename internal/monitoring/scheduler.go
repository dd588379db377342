package monitoring

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"freightflow/backend/internal/health"
)

// HealthScheduler 定期执行健康检查、刷新运行时指标并评估告警规则
type HealthScheduler struct {
	aggregator *health.Aggregator
	metrics    *Metrics
	alerts     *AlertManager
	startedAt  time.Time
	interval   time.Duration
	logger     *zap.Logger

	cron *cron.Cron

	mu     sync.RWMutex
	latest *health.Report
}

// NewHealthScheduler 创建调度器
func NewHealthScheduler(agg *health.Aggregator, metrics *Metrics, alerts *AlertManager, startedAt time.Time, interval time.Duration, logger *zap.Logger) *HealthScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	agg.Observe(metrics.UpdateHealthIndicator)
	return &HealthScheduler{
		aggregator: agg,
		metrics:    metrics,
		alerts:     alerts,
		startedAt:  startedAt,
		interval:   interval,
		logger:     logger,
		cron:       cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

// Latest 最近一次检查的报告，尚未执行时为 nil
func (s *HealthScheduler) Latest() *health.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// RunOnce 执行一次检查
func (s *HealthScheduler) RunOnce(ctx context.Context) health.Report {
	report := s.aggregator.Check(ctx)

	s.mu.Lock()
	s.latest = &report
	s.mu.Unlock()

	s.metrics.UpdateRuntime(time.Since(s.startedAt))
	if s.alerts != nil {
		s.alerts.CheckRules(ctx)
	}

	if !report.Healthy() {
		keys := make([]string, 0, len(report.Error))
		for key := range report.Error {
			keys = append(keys, key)
		}
		s.logger.Warn("scheduled health check failed", zap.Strings("indicators", keys))
	}
	return report
}

// Start 立即执行一次并按间隔调度，ctx 结束时停止
func (s *HealthScheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule health check: %w", err)
	}

	s.RunOnce(ctx)
	s.cron.Start()
	s.logger.Info("health scheduler started", zap.Duration("interval", s.interval))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("health scheduler stopped")
	return nil
}

// HeapAlloc 读取当前堆分配字节数
func HeapAlloc() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}
