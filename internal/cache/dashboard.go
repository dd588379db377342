package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"freightflow/backend/internal/domain"
)

// DashboardCache 按调用者范围缓存看板快照
type DashboardCache struct {
	store Store
	ttl   time.Duration
	log   *zap.Logger
}

// NewDashboardCache 创建看板缓存，ttl <= 0 时禁用
func NewDashboardCache(store Store, ttl time.Duration, log *zap.Logger) *DashboardCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &DashboardCache{store: store, ttl: ttl, log: log}
}

// DashboardKey 缓存键：dashboard:<tenant>:<role>:<user>
func DashboardKey(scope domain.Scope) string {
	return fmt.Sprintf("dashboard:%s:%s:%s", scope.TenantID, scope.Role, scope.UserID)
}

// Enabled 是否启用缓存
func (c *DashboardCache) Enabled() bool {
	return c != nil && c.store != nil && c.ttl > 0
}

// Get 读取缓存，未命中或反序列化失败时返回 false
func (c *DashboardCache) Get(ctx context.Context, scope domain.Scope) (*domain.DashboardAnalytics, bool) {
	if !c.Enabled() {
		return nil, false
	}

	data, err := c.store.Get(ctx, DashboardKey(scope))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.log.Warn("dashboard cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var analytics domain.DashboardAnalytics
	if err := json.Unmarshal(data, &analytics); err != nil {
		c.log.Warn("dashboard cache entry corrupted", zap.String("key", DashboardKey(scope)), zap.Error(err))
		return nil, false
	}
	return &analytics, true
}

// Put 写入缓存，失败只记录日志
func (c *DashboardCache) Put(ctx context.Context, scope domain.Scope, analytics *domain.DashboardAnalytics) {
	if !c.Enabled() || analytics == nil {
		return
	}

	data, err := json.Marshal(analytics)
	if err != nil {
		c.log.Warn("failed to encode dashboard for cache", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, DashboardKey(scope), data, c.ttl); err != nil {
		c.log.Warn("dashboard cache write failed", zap.Error(err))
	}
}
