package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightflow/backend/internal/cache"
)

func healthy(key string) Indicator {
	return Indicator{Key: key, Check: func(context.Context) (map[string]any, error) {
		return map[string]any{"note": "fine"}, nil
	}}
}

func failing(key string, err error) Indicator {
	return Indicator{Key: key, Check: func(context.Context) (map[string]any, error) {
		return nil, err
	}}
}

func TestAggregator_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("全部健康", func(t *testing.T) {
		agg := NewAggregator(time.Second, nil, healthy("database"), healthy("uptime"))
		report := agg.Check(ctx)

		assert.True(t, report.Healthy())
		assert.Equal(t, StatusOK, report.Status)
		assert.Len(t, report.Info, 2)
		assert.Empty(t, report.Error)
		assert.Equal(t, StatusUp, report.Details["database"]["status"])
		assert.Equal(t, "fine", report.Details["database"]["note"])
	})

	t.Run("任一失败则整体失败", func(t *testing.T) {
		agg := NewAggregator(time.Second, nil, healthy("uptime"), failing("database", errors.New("connection refused")))
		report := agg.Check(ctx)

		assert.Equal(t, StatusError, report.Status)
		assert.Contains(t, report.Info, "uptime")
		assert.NotContains(t, report.Info, "database")
		require.Contains(t, report.Error, "database")
		assert.Equal(t, StatusDown, report.Error["database"]["status"])
		assert.Equal(t, "connection refused", report.Error["database"]["message"])
		assert.Len(t, report.Details, 2)
	})

	t.Run("超时计为不健康且不拖慢其他指标", func(t *testing.T) {
		block := make(chan struct{})
		defer close(block)
		slow := Indicator{Key: "cache", Check: func(context.Context) (map[string]any, error) {
			<-block
			return nil, nil
		}}

		agg := NewAggregator(50*time.Millisecond, nil, slow, healthy("database"))
		start := time.Now()
		report := agg.Check(ctx)

		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, StatusError, report.Status)
		assert.Equal(t, ErrTimeout.Error(), report.Error["cache"]["message"])
		assert.Contains(t, report.Info, "database")
	})

	t.Run("panic 被折叠为不健康", func(t *testing.T) {
		boom := Indicator{Key: "memory", Check: func(context.Context) (map[string]any, error) {
			panic("reader exploded")
		}}
		report := NewAggregator(time.Second, nil, boom).Check(ctx)
		assert.Equal(t, StatusError, report.Status)
		assert.Contains(t, report.Error["memory"]["message"], "reader exploded")
	})

	t.Run("回调收到每个结果", func(t *testing.T) {
		agg := NewAggregator(time.Second, nil, healthy("a"), failing("b", errors.New("x")))
		var mu sync.Mutex
		seen := map[string]bool{}
		agg.Observe(func(key string, up bool) {
			mu.Lock()
			seen[key] = up
			mu.Unlock()
		})
		agg.Check(ctx)
		assert.Equal(t, map[string]bool{"a": true, "b": false}, seen)
	})

	t.Run("没有指标时健康", func(t *testing.T) {
		report := NewAggregator(time.Second, nil).Check(ctx)
		assert.True(t, report.Healthy())
		assert.NotNil(t, report.Info)
		assert.NotNil(t, report.Error)
	})
}

func TestSQLDatabaseIndicator(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	ind := SQLDatabaseIndicator(db)

	t.Run("ping 成功", func(t *testing.T) {
		mock.ExpectPing()
		details, err := ind.Check(context.Background())
		require.NoError(t, err)
		assert.Contains(t, details, "responseTimeMs")
	})

	t.Run("ping 失败", func(t *testing.T) {
		mock.ExpectPing().WillReturnError(errors.New("db down"))
		_, err := ind.Check(context.Background())
		assert.EqualError(t, err, "db down")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryIndicator(t *testing.T) {
	th := MemoryThresholds{
		HeapWarningBytes:         100,
		HeapCriticalBytes:        200,
		SystemMemWarningPercent:  85,
		SystemMemCriticalPercent: 95,
	}
	reading := func(heap uint64, sys float64, sysErr error) MemorySource {
		return MemorySource{
			HeapAlloc:     func() uint64 { return heap },
			SystemPercent: func(context.Context) (float64, error) { return sys, sysErr },
		}
	}

	cases := []struct {
		name    string
		src     MemorySource
		healthy bool
		level   string
	}{
		{"正常", reading(50, 40, nil), true, "normal"},
		{"堆内存告警但仍健康", reading(150, 40, nil), true, "warning"},
		{"系统内存告警", reading(50, 90, nil), true, "warning"},
		{"堆内存超过上限", reading(250, 40, nil), false, "critical"},
		{"系统内存超过上限", reading(50, 97.5, nil), false, "critical"},
		{"系统读数不可用时只看堆", reading(50, 0, errors.New("unsupported")), true, "normal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			details, err := MemoryIndicator(th, tc.src).Check(context.Background())
			assert.Equal(t, tc.healthy, err == nil)
			assert.Equal(t, tc.level, details["level"])
		})
	}
}

func TestUptimeIndicator(t *testing.T) {
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	now := start.Add(5 * time.Second)
	ind := UptimeIndicator(start, 10*time.Second, func() time.Time { return now })

	_, err := ind.Check(context.Background())
	assert.Error(t, err, "启动未满 10 秒")

	now = start.Add(time.Minute)
	details, err := ind.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(60), details["uptimeSeconds"])
}

type brokenCache struct{ cache.Store }

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("READONLY")
}

func TestCacheIndicator(t *testing.T) {
	local := cache.NewLocalCache(10, time.Minute)
	defer local.Close()

	_, err := CacheIndicator(local).Check(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, local.Len(), "探测键已删除")

	_, err = CacheIndicator(brokenCache{local}).Check(context.Background())
	assert.ErrorContains(t, err, "READONLY")
}

func TestCheckHandler(t *testing.T) {
	t.Run("存活与就绪", func(t *testing.T) {
		agg := NewAggregator(time.Second, nil, healthy("database"), failing("cache", errors.New("down")))
		handler := NewCheckHandler(agg)

		rec := httptest.NewRecorder()
		handler.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		handler.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/ready?full=1", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "indicators down: cache")
	})

	t.Run("就绪检查把超时上下文传给指标", func(t *testing.T) {
		var (
			mu          sync.Mutex
			hadDeadline bool
		)
		agg := NewAggregator(50*time.Millisecond, nil, Indicator{
			Key: "database",
			Check: func(ctx context.Context) (map[string]any, error) {
				_, ok := ctx.Deadline()
				mu.Lock()
				hadDeadline = ok
				mu.Unlock()
				<-ctx.Done()
				return nil, ctx.Err()
			},
		})
		handler := NewCheckHandler(agg)

		start := time.Now()
		rec := httptest.NewRecorder()
		handler.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Less(t, time.Since(start), time.Second)

		mu.Lock()
		defer mu.Unlock()
		assert.True(t, hadDeadline)
	})

	t.Run("构建后注册的指标也参与就绪", func(t *testing.T) {
		agg := NewAggregator(time.Second, nil, healthy("database"))
		handler := NewCheckHandler(agg)
		agg.Register(failing("cache", errors.New("down")))

		rec := httptest.NewRecorder()
		handler.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestCollector_Detailed(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	c := NewCollector(started, "1.2.3", "test", nil,
		WithCatalogStats(func(context.Context) (any, error) { return nil, errors.New("not postgres") }),
	)
	metrics := c.Detailed(context.Background())

	assert.Equal(t, "memory", metrics.Database["type"])
	assert.Equal(t, map[string]any{"error": "not postgres"}, metrics.Database["catalog"])
	assert.Contains(t, metrics.System, "goRuntime")
	assert.Equal(t, "1.2.3", metrics.Application["version"])
	assert.GreaterOrEqual(t, metrics.Application["uptimeSeconds"].(int64), int64(59))
}
