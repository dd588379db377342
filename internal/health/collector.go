package health

import (
	"context"
	"database/sql"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// DetailedMetrics /health/detailed 中的 metrics 部分
type DetailedMetrics struct {
	Database    map[string]any `json:"database"`
	System      map[string]any `json:"system"`
	Application map[string]any `json:"application"`
}

// CatalogStatsFunc 读取数据库目录统计（仅 PostgreSQL）
type CatalogStatsFunc func(ctx context.Context) (any, error)

// Collector 采集详细运行指标
type Collector struct {
	startedAt   time.Time
	version     string
	environment string
	dbType      string
	dbStats     func() (sql.DBStats, error)
	catalog     CatalogStatsFunc
	log         *zap.Logger
}

// CollectorOption Collector 配置项
type CollectorOption func(*Collector)

// WithDBStats 提供连接池统计
func WithDBStats(dbType string, stats func() (sql.DBStats, error)) CollectorOption {
	return func(c *Collector) {
		c.dbType = dbType
		c.dbStats = stats
	}
}

// WithCatalogStats 提供数据库目录统计
func WithCatalogStats(fn CatalogStatsFunc) CollectorOption {
	return func(c *Collector) { c.catalog = fn }
}

// NewCollector 创建采集器
func NewCollector(startedAt time.Time, version, environment string, log *zap.Logger, opts ...CollectorOption) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Collector{
		startedAt:   startedAt,
		version:     version,
		environment: environment,
		dbType:      "memory",
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartedAt 进程启动时间
func (c *Collector) StartedAt() time.Time {
	return c.startedAt
}

// Version 应用版本
func (c *Collector) Version() string {
	return c.version
}

// Environment 运行环境
func (c *Collector) Environment() string {
	return c.environment
}

// Detailed 采集数据库、系统与应用指标，单项失败只记录在对应字段中
func (c *Collector) Detailed(ctx context.Context) DetailedMetrics {
	return DetailedMetrics{
		Database:    c.database(ctx),
		System:      c.system(ctx),
		Application: c.application(),
	}
}

func (c *Collector) database(ctx context.Context) map[string]any {
	out := map[string]any{"type": c.dbType}

	if c.dbStats != nil {
		stats, err := c.dbStats()
		if err != nil {
			out["pool"] = map[string]any{"error": err.Error()}
		} else {
			out["pool"] = map[string]any{
				"maxOpenConnections": stats.MaxOpenConnections,
				"openConnections":    stats.OpenConnections,
				"inUse":              stats.InUse,
				"idle":               stats.Idle,
				"waitCount":          stats.WaitCount,
				"waitDurationMs":     stats.WaitDuration.Milliseconds(),
			}
		}
	}

	if c.catalog != nil {
		stats, err := c.catalog(ctx)
		if err != nil {
			c.log.Warn("failed to read database catalog stats", zap.Error(err))
			out["catalog"] = map[string]any{"error": err.Error()}
		} else {
			out["catalog"] = stats
		}
	}
	return out
}

func (c *Collector) system(ctx context.Context) map[string]any {
	out := map[string]any{
		"os":   runtime.GOOS,
		"arch": runtime.GOARCH,
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out["memory"] = map[string]any{
			"totalBytes":     vm.Total,
			"usedBytes":      vm.Used,
			"availableBytes": vm.Available,
			"usedPercent":    roundPercent(vm.UsedPercent),
		}
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		out["loadAverage"] = []float64{avg.Load1, avg.Load5, avg.Load15}
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		out["cpuCount"] = n
	}
	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		out["hostUptimeSeconds"] = uptime
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	out["goRuntime"] = map[string]any{
		"version":        runtime.Version(),
		"numCPU":         runtime.NumCPU(),
		"heapAllocBytes": m.HeapAlloc,
		"heapSysBytes":   m.HeapSys,
		"numGC":          m.NumGC,
	}
	return out
}

func (c *Collector) application() map[string]any {
	return map[string]any{
		"startedAt":     c.startedAt.UTC().Format(time.RFC3339),
		"uptimeSeconds": int64(time.Since(c.startedAt).Seconds()),
		"pid":           os.Getpid(),
		"version":       c.version,
		"environment":   c.environment,
		"goroutines":    runtime.NumGoroutine(),
	}
}
