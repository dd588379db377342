package smtp

import (
	"context"

	"golang.org/x/time/rate"
)

// ConnectionLimiter SMTP 出站连接限流器
type ConnectionLimiter struct {
	slots       chan struct{}
	rateLimiter *rate.Limiter
}

// NewConnectionLimiter 创建连接限流器
//
// 参数:
//   - maxConns: 最大并发连接数
//   - maxRate: 每秒最大新建连接数，<= 0 表示不限速
func NewConnectionLimiter(maxConns int, maxRate float64) *ConnectionLimiter {
	if maxConns <= 0 {
		maxConns = 1
	}
	limit := rate.Inf
	burst := 0
	if maxRate > 0 {
		limit = rate.Limit(maxRate)
		burst = max(1, int(maxRate))
	}
	return &ConnectionLimiter{
		slots:       make(chan struct{}, maxConns),
		rateLimiter: rate.NewLimiter(limit, burst),
	}
}

// Acquire 等待连接许可，返回释放函数
func (l *ConnectionLimiter) Acquire(ctx context.Context) (func(), error) {
	if err := l.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	select {
	case l.slots <- struct{}{}:
		return func() { <-l.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Current 当前连接数
func (l *ConnectionLimiter) Current() int {
	return len(l.slots)
}
