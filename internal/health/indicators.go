package health

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/mem"

	"freightflow/backend/internal/cache"
)

// Pinger 可探测连通性的依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseIndicator 通过存储的 Ping 检查数据库
func DatabaseIndicator(db Pinger) Indicator {
	return Indicator{
		Key: "database",
		Check: func(ctx context.Context) (map[string]any, error) {
			start := time.Now()
			if err := db.Ping(ctx); err != nil {
				return nil, err
			}
			return map[string]any{"responseTimeMs": time.Since(start).Milliseconds()}, nil
		},
	}
}

// sqlPinger 适配 *sql.DB
type sqlPinger struct{ db *sql.DB }

func (p sqlPinger) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// SQLDatabaseIndicator 直接对 *sql.DB 执行 PingContext
func SQLDatabaseIndicator(db *sql.DB) Indicator {
	return DatabaseIndicator(sqlPinger{db: db})
}

// MemoryThresholds 内存阈值
type MemoryThresholds struct {
	HeapWarningBytes         uint64
	HeapCriticalBytes        uint64
	SystemMemWarningPercent  float64
	SystemMemCriticalPercent float64
}

// MemorySource 内存读数来源
type MemorySource struct {
	HeapAlloc     func() uint64
	SystemPercent func(ctx context.Context) (float64, error)
}

// DefaultMemorySource 读取 Go 堆与系统内存使用率
func DefaultMemorySource() MemorySource {
	return MemorySource{
		HeapAlloc: func() uint64 {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			return m.HeapAlloc
		},
		SystemPercent: func(ctx context.Context) (float64, error) {
			vm, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return 0, err
			}
			return vm.UsedPercent, nil
		},
	}
}

// errMemoryCritical 内存超过不健康阈值
var errMemoryCritical = errors.New("memory usage above critical threshold")

// MemoryIndicator 检查堆内存与系统内存
//
// 超过 warning 阈值时仍然健康，但 details.level 为 warning。
func MemoryIndicator(th MemoryThresholds, src MemorySource) Indicator {
	return Indicator{
		Key: "memory",
		Check: func(ctx context.Context) (map[string]any, error) {
			heap := src.HeapAlloc()
			details := map[string]any{
				"heapUsedBytes":     heap,
				"heapCriticalBytes": th.HeapCriticalBytes,
				"level":             "normal",
			}

			critical := th.HeapCriticalBytes > 0 && heap > th.HeapCriticalBytes
			warning := th.HeapWarningBytes > 0 && heap > th.HeapWarningBytes

			if src.SystemPercent != nil {
				percent, err := src.SystemPercent(ctx)
				if err != nil {
					details["systemMemory"] = "unavailable"
				} else {
					details["systemUsedPercent"] = roundPercent(percent)
					if th.SystemMemCriticalPercent > 0 && percent > th.SystemMemCriticalPercent {
						critical = true
					}
					if th.SystemMemWarningPercent > 0 && percent > th.SystemMemWarningPercent {
						warning = true
					}
				}
			}

			switch {
			case critical:
				details["level"] = "critical"
				return details, errMemoryCritical
			case warning:
				details["level"] = "warning"
			}
			return details, nil
		},
	}
}

func roundPercent(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// UptimeIndicator 进程运行时间达到 minUptime 才视为健康
func UptimeIndicator(startedAt time.Time, minUptime time.Duration, now func() time.Time) Indicator {
	if now == nil {
		now = time.Now
	}
	return Indicator{
		Key: "uptime",
		Check: func(context.Context) (map[string]any, error) {
			uptime := now().Sub(startedAt)
			details := map[string]any{
				"uptimeSeconds": int64(uptime.Seconds()),
				"startedAt":     startedAt.UTC().Format(time.RFC3339),
			}
			if uptime < minUptime {
				return details, fmt.Errorf("process warming up: uptime %s below %s", uptime.Truncate(time.Millisecond), minUptime)
			}
			return details, nil
		},
	}
}

// CacheIndicator 对缓存执行写入、读取、删除往返
func CacheIndicator(store cache.Store) Indicator {
	return Indicator{
		Key: "cache",
		Check: func(ctx context.Context) (map[string]any, error) {
			start := time.Now()
			key := "health:check:" + uuid.NewString()
			value := []byte(key)

			if err := store.Set(ctx, key, value, 10*time.Second); err != nil {
				return nil, fmt.Errorf("cache set: %w", err)
			}
			got, err := store.Get(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("cache get: %w", err)
			}
			if !bytes.Equal(got, value) {
				return nil, errors.New("cache returned unexpected value")
			}
			if err := store.Delete(ctx, key); err != nil {
				return nil, fmt.Errorf("cache delete: %w", err)
			}
			return map[string]any{"responseTimeMs": time.Since(start).Milliseconds()}, nil
		},
	}
}
