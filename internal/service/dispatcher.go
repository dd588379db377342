package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"freightflow/backend/internal/config"
	"freightflow/backend/internal/domain"
	"freightflow/backend/internal/monitoring"
	"freightflow/backend/internal/notify"
	"freightflow/backend/internal/pool"
	"freightflow/backend/internal/security"
)

// 失败原因
const (
	reasonNotConfigured = "channel not configured"
	reasonCircuitOpen   = "circuit open"
	reasonTimeout       = "timeout"
	reasonInvalid       = "invalid recipient"
)

var errCircuitOpen = errors.New(reasonCircuitOpen)

// NotificationDispatcher 把一条通知并发投递到请求的各个渠道
type NotificationDispatcher struct {
	channels   map[domain.Channel]notify.Channel
	breakers   map[domain.Channel]*gobreaker.CircuitBreaker
	cfg        config.NotificationConfig
	retryDelay time.Duration
	pool       *pool.WorkerPool
	filter     *security.ContentFilter
	metrics    *monitoring.Metrics
	log        *zap.Logger
}

// DispatcherOption 分发器配置项
type DispatcherOption func(*NotificationDispatcher)

// WithWorkerPool 设置异步分发使用的协程池
func WithWorkerPool(p *pool.WorkerPool) DispatcherOption {
	return func(d *NotificationDispatcher) { d.pool = p }
}

// WithMetrics 设置监控指标
func WithMetrics(m *monitoring.Metrics) DispatcherOption {
	return func(d *NotificationDispatcher) { d.metrics = m }
}

// WithContentFilter 设置通知文案过滤器
func WithContentFilter(f *security.ContentFilter) DispatcherOption {
	return func(d *NotificationDispatcher) { d.filter = f }
}

// WithRetryDelay 设置重试的初始退避时间
func WithRetryDelay(delay time.Duration) DispatcherOption {
	return func(d *NotificationDispatcher) { d.retryDelay = delay }
}

// NewNotificationDispatcher 创建分发器
//
// cfg.RetryAttempts 大于 1 时启用重试与按渠道熔断，否则每个渠道只尝试一次。
func NewNotificationDispatcher(cfg config.NotificationConfig, log *zap.Logger, channels []notify.Channel, opts ...DispatcherOption) *NotificationDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = 10 * time.Second
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}

	d := &NotificationDispatcher{
		channels:   make(map[domain.Channel]notify.Channel, len(channels)),
		breakers:   make(map[domain.Channel]*gobreaker.CircuitBreaker),
		cfg:        cfg,
		retryDelay: 200 * time.Millisecond,
		log:        log,
	}
	for _, ch := range channels {
		d.channels[ch.Name()] = ch
	}
	for _, opt := range opts {
		opt(d)
	}

	if cfg.RetryAttempts > 1 {
		for name := range d.channels {
			d.breakers[name] = newBreaker(name, cfg, log)
		}
	}
	return d
}

func newBreaker(name domain.Channel, cfg config.NotificationConfig, log *zap.Logger) *gobreaker.CircuitBreaker {
	threshold := uint32(max(cfg.BreakerThreshold, 1))
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notify-" + string(name),
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, notify.ErrInvalidRecipient)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("notification channel breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// Send 校验并同步投递，返回按请求顺序排列的各渠道结果
//
// 校验失败时返回 *domain.ValidationError，不会调用任何渠道。
func (d *NotificationDispatcher) Send(ctx context.Context, payload domain.NotificationPayload) (*domain.DispatchResult, error) {
	if err := d.validate(payload); err != nil {
		return nil, err
	}

	outcomes := make([]domain.ChannelOutcome, len(payload.Channels))
	var g errgroup.Group
	for i, ch := range payload.Channels {
		g.Go(func() error {
			outcomes[i] = d.deliver(ctx, ch, payload)
			return nil
		})
	}
	_ = g.Wait()

	return &domain.DispatchResult{
		Status:   domain.Summarize(outcomes),
		Outcomes: outcomes,
	}, nil
}

func (d *NotificationDispatcher) validate(payload domain.NotificationPayload) error {
	if err := domain.ValidateNotificationPayload(payload); err != nil {
		return err
	}
	if d.filter != nil {
		return d.filter.Check(payload)
	}
	return nil
}

// Enqueue 异步投递，只同步返回校验错误与队列已满错误
func (d *NotificationDispatcher) Enqueue(payload domain.NotificationPayload) error {
	if err := d.validate(payload); err != nil {
		return err
	}
	if d.pool == nil {
		return errors.New("async dispatch is not configured")
	}

	err := d.pool.TrySubmit(func(ctx context.Context) {
		result, err := d.Send(ctx, payload)
		if err != nil {
			d.log.Error("async notification dispatch failed", zap.String("type", payload.Type), zap.Error(err))
			return
		}
		d.log.Info("async notification dispatched",
			zap.String("type", payload.Type),
			zap.String("user_id", payload.UserID),
			zap.String("status", string(result.Status)),
		)
		d.metrics.UpdateDispatchQueueDepth(d.pool.Pending())
	})
	if err != nil {
		d.metrics.RecordNotificationDropped()
		d.log.Warn("notification dropped", zap.String("type", payload.Type), zap.Error(err))
		return fmt.Errorf("enqueue notification: %w", err)
	}
	d.metrics.UpdateDispatchQueueDepth(d.pool.Pending())
	return nil
}

// deliver 投递到单个渠道，失败不会影响其他渠道
func (d *NotificationDispatcher) deliver(ctx context.Context, ch domain.Channel, payload domain.NotificationPayload) domain.ChannelOutcome {
	start := time.Now()
	outcome := domain.ChannelOutcome{Channel: ch}

	channel, ok := d.channels[ch]
	if !ok {
		outcome.Outcome = domain.OutcomeFailed
		outcome.Reason = reasonNotConfigured
		d.metrics.RecordNotification(string(ch), string(outcome.Outcome), time.Since(start))
		return outcome
	}

	send := func() error {
		outcome.Attempts++
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.ChannelTimeout)
		defer cancel()
		return channel.Send(sendCtx, payload)
	}

	var err error
	if breaker, ok := d.breakers[ch]; ok {
		err = d.sendWithRetry(ctx, breaker, send)
	} else {
		err = send()
	}

	if err == nil {
		outcome.Outcome = domain.OutcomeDelivered
	} else {
		outcome.Outcome = domain.OutcomeFailed
		outcome.Reason = failureReason(err)
		d.log.Warn("notification channel failed",
			zap.String("channel", string(ch)),
			zap.String("type", payload.Type),
			zap.Int("attempts", outcome.Attempts),
			zap.Error(err),
		)
	}
	d.metrics.RecordNotification(string(ch), string(outcome.Outcome), time.Since(start))
	return outcome
}

// sendWithRetry 在熔断器内执行指数退避重试，收件人无效时不重试
func (d *NotificationDispatcher) sendWithRetry(ctx context.Context, breaker *gobreaker.CircuitBreaker, send func() error) error {
	_, err := breaker.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(uint(d.cfg.RetryAttempts)),
			retry.Delay(d.retryDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				return !errors.Is(err, notify.ErrInvalidRecipient)
			}),
		)
		return nil, r.Do(send)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errCircuitOpen
	}
	return err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, errCircuitOpen):
		return reasonCircuitOpen
	case errors.Is(err, notify.ErrInvalidRecipient):
		return reasonInvalid
	case errors.Is(err, context.DeadlineExceeded):
		return reasonTimeout
	default:
		return err.Error()
	}
}
