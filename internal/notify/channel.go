// Package notify 实现通知渠道适配器（邮件、站内信）。
//
// 适配器只负责单次投递，不做重试；重试与熔断由分发器决定。
package notify

import (
	"context"
	"errors"

	"freightflow/backend/internal/domain"
)

// ErrInvalidRecipient 收件人无效（邮箱格式错误、被中继拒绝或用户为空）
var ErrInvalidRecipient = errors.New("invalid recipient")

// Channel 通知渠道
type Channel interface {
	// Name 渠道名
	Name() domain.Channel
	// Send 投递一次，nil 表示已送达
	Send(ctx context.Context, payload domain.NotificationPayload) error
}
