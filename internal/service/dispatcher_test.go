package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"freightflow/backend/internal/config"
	"freightflow/backend/internal/domain"
	"freightflow/backend/internal/notify"
	"freightflow/backend/internal/pool"
	"freightflow/backend/internal/security"
)

// MockChannel 模拟通知渠道
type MockChannel struct {
	mock.Mock
	name domain.Channel
}

func (m *MockChannel) Name() domain.Channel { return m.name }

func (m *MockChannel) Send(ctx context.Context, payload domain.NotificationPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

func newMockChannel(name domain.Channel) *MockChannel {
	return &MockChannel{name: name}
}

func fullPayload() domain.NotificationPayload {
	return domain.NotificationPayload{
		Type:         "shipment.delivered",
		UserID:       "user-1",
		UserEmail:    "ops@shipper.io",
		Subject:      "Delivered",
		EmailBody:    "FF-1 delivered",
		InAppMessage: "FF-1 delivered",
		Channels:     []domain.Channel{domain.ChannelEmail, domain.ChannelInApp},
	}
}

func fireAndForget() config.NotificationConfig {
	return config.NotificationConfig{ChannelTimeout: time.Second, RetryAttempts: 1}
}

func TestNotificationDispatcher_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("邮件失败不影响站内信", func(t *testing.T) {
		email := newMockChannel(domain.ChannelEmail)
		inApp := newMockChannel(domain.ChannelInApp)
		email.On("Send", mock.Anything, mock.Anything).Return(domain.Upstream("smtp", errors.New("connection refused")))
		inApp.On("Send", mock.Anything, mock.Anything).Return(nil)

		d := NewNotificationDispatcher(fireAndForget(), nil, []notify.Channel{email, inApp})
		result, err := d.Send(ctx, fullPayload())
		require.NoError(t, err)

		assert.Equal(t, domain.DispatchPartial, result.Status)
		require.Len(t, result.Outcomes, 2)
		assert.Equal(t, domain.ChannelEmail, result.Outcomes[0].Channel)
		assert.Equal(t, domain.OutcomeFailed, result.Outcomes[0].Outcome)
		assert.Contains(t, result.Outcomes[0].Reason, "connection refused")
		assert.Equal(t, 1, result.Outcomes[0].Attempts)
		assert.Equal(t, domain.ChannelInApp, result.Outcomes[1].Channel)
		assert.Equal(t, domain.OutcomeDelivered, result.Outcomes[1].Outcome)
		inApp.AssertNumberOfCalls(t, "Send", 1)
	})

	t.Run("结果保持请求顺序", func(t *testing.T) {
		email := newMockChannel(domain.ChannelEmail)
		inApp := newMockChannel(domain.ChannelInApp)
		email.On("Send", mock.Anything, mock.Anything).Return(nil)
		inApp.On("Send", mock.Anything, mock.Anything).Return(nil)

		p := fullPayload()
		p.Channels = []domain.Channel{domain.ChannelInApp, domain.ChannelEmail}
		result, err := NewNotificationDispatcher(fireAndForget(), nil, []notify.Channel{email, inApp}).Send(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, domain.DispatchDelivered, result.Status)
		assert.Equal(t, domain.ChannelInApp, result.Outcomes[0].Channel)
		assert.Equal(t, domain.ChannelEmail, result.Outcomes[1].Channel)
	})

	t.Run("校验失败时不调用任何渠道", func(t *testing.T) {
		email := newMockChannel(domain.ChannelEmail)
		p := fullPayload()
		p.UserEmail = ""

		_, err := NewNotificationDispatcher(fireAndForget(), nil, []notify.Channel{email}).Send(ctx, p)
		assert.True(t, domain.IsValidation(err))
		email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("文案含脚本时被过滤器拒绝", func(t *testing.T) {
		inApp := newMockChannel(domain.ChannelInApp)
		p := fullPayload()
		p.Channels = []domain.Channel{domain.ChannelInApp}
		p.InAppMessage = "<script>alert(1)</script>"

		d := NewNotificationDispatcher(fireAndForget(), nil, []notify.Channel{inApp}, WithContentFilter(security.NewContentFilter()))
		_, err := d.Send(ctx, p)
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "inAppMessage", ve.Violations[0].Field)
		inApp.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("渠道超时", func(t *testing.T) {
		inApp := newMockChannel(domain.ChannelInApp)
		inApp.On("Send", mock.Anything, mock.Anything).Return(context.DeadlineExceeded).
			WaitUntil(time.After(50 * time.Millisecond))

		cfg := fireAndForget()
		cfg.ChannelTimeout = 10 * time.Millisecond
		p := fullPayload()
		p.Channels = []domain.Channel{domain.ChannelInApp}

		result, err := NewNotificationDispatcher(cfg, nil, []notify.Channel{inApp}).Send(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, domain.DispatchFailed, result.Status)
		assert.Equal(t, "timeout", result.Outcomes[0].Reason)
	})

	t.Run("未配置的渠道", func(t *testing.T) {
		p := fullPayload()
		p.Channels = []domain.Channel{domain.ChannelEmail}
		result, err := NewNotificationDispatcher(fireAndForget(), nil, nil).Send(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "channel not configured", result.Outcomes[0].Reason)
	})
}

// flakyChannel 前 failures 次失败
type flakyChannel struct {
	name     domain.Channel
	failures int32
	err      error
	calls    atomic.Int32
}

func (f *flakyChannel) Name() domain.Channel { return f.name }

func (f *flakyChannel) Send(context.Context, domain.NotificationPayload) error {
	if f.calls.Add(1) <= f.failures {
		return f.err
	}
	return nil
}

func TestNotificationDispatcher_Retry(t *testing.T) {
	ctx := context.Background()
	p := fullPayload()
	p.Channels = []domain.Channel{domain.ChannelEmail}

	cfg := config.NotificationConfig{
		ChannelTimeout:   time.Second,
		RetryAttempts:    3,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Minute,
	}

	t.Run("暂时失败后重试成功", func(t *testing.T) {
		ch := &flakyChannel{name: domain.ChannelEmail, failures: 2, err: domain.Upstream("smtp", errors.New("421 try later"))}
		d := NewNotificationDispatcher(cfg, nil, []notify.Channel{ch}, WithRetryDelay(time.Millisecond))

		result, err := d.Send(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeDelivered, result.Outcomes[0].Outcome)
		assert.Equal(t, 3, result.Outcomes[0].Attempts)
	})

	t.Run("收件人无效不重试也不熔断", func(t *testing.T) {
		ch := &flakyChannel{name: domain.ChannelEmail, failures: 100, err: notify.ErrInvalidRecipient}
		d := NewNotificationDispatcher(cfg, nil, []notify.Channel{ch}, WithRetryDelay(time.Millisecond))

		for i := 0; i < 3; i++ {
			result, err := d.Send(ctx, p)
			require.NoError(t, err)
			assert.Equal(t, "invalid recipient", result.Outcomes[0].Reason)
			assert.Equal(t, 1, result.Outcomes[0].Attempts)
		}
	})

	t.Run("持续失败后熔断", func(t *testing.T) {
		ch := &flakyChannel{name: domain.ChannelEmail, failures: 100, err: domain.Upstream("smtp", errors.New("connection refused"))}
		d := NewNotificationDispatcher(cfg, nil, []notify.Channel{ch}, WithRetryDelay(time.Millisecond))

		for i := 0; i < 2; i++ {
			result, err := d.Send(ctx, p)
			require.NoError(t, err)
			assert.Equal(t, 3, result.Outcomes[0].Attempts)
		}

		result, err := d.Send(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "circuit open", result.Outcomes[0].Reason)
		assert.Equal(t, 0, result.Outcomes[0].Attempts)
		assert.Equal(t, int32(6), ch.calls.Load())
	})
}

func TestNotificationDispatcher_Enqueue(t *testing.T) {
	inApp := newMockChannel(domain.ChannelInApp)
	done := make(chan struct{})
	inApp.On("Send", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) { close(done) })

	wp := pool.NewWorkerPool(1, 4, nil)
	wp.Start(context.Background())
	defer wp.Stop()

	d := NewNotificationDispatcher(fireAndForget(), nil, []notify.Channel{inApp}, WithWorkerPool(wp))

	p := fullPayload()
	p.Channels = []domain.Channel{domain.ChannelInApp}
	require.NoError(t, d.Enqueue(p))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not dispatched")
	}

	p.Channels = nil
	assert.True(t, domain.IsValidation(d.Enqueue(p)), "校验错误同步返回")

	assert.Error(t, NewNotificationDispatcher(fireAndForget(), nil, nil).Enqueue(fullPayload()), "没有协程池")
}
