package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"freightflow/backend/internal/domain"
	"freightflow/backend/internal/storage"
	"freightflow/backend/internal/websocket"
)

// Pusher 向用户的在线连接推送消息
type Pusher interface {
	PushToUser(userID string, msgType websocket.MessageType, payload any) error
}

// InAppChannel 站内信渠道：持久化一条通知，并尽力推送到在线连接
type InAppChannel struct {
	repo   storage.NotificationRepository
	pusher Pusher
	now    func() time.Time
	log    *zap.Logger
}

// NewInAppChannel 创建站内信渠道，pusher 可为 nil
func NewInAppChannel(repo storage.NotificationRepository, pusher Pusher, log *zap.Logger) *InAppChannel {
	if log == nil {
		log = zap.NewNop()
	}
	return &InAppChannel{repo: repo, pusher: pusher, now: time.Now, log: log}
}

// Name 实现 Channel
func (c *InAppChannel) Name() domain.Channel {
	return domain.ChannelInApp
}

// Send 保存站内通知；推送失败只记录日志
func (c *InAppChannel) Send(ctx context.Context, payload domain.NotificationPayload) error {
	if payload.UserID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidRecipient)
	}

	notification := &domain.InAppNotification{
		ID:        uuid.NewString(),
		UserID:    payload.UserID,
		Type:      payload.Type,
		Title:     payload.Subject,
		Message:   payload.InAppMessage,
		Metadata:  payload.Metadata,
		CreatedAt: c.now().UTC(),
	}
	if err := c.repo.CreateNotification(ctx, notification); err != nil {
		return domain.Upstream("notification store", err)
	}

	if c.pusher != nil {
		if err := c.pusher.PushToUser(payload.UserID, websocket.MessageTypeNotification, notification); err != nil {
			c.log.Warn("failed to push in-app notification",
				zap.String("user_id", payload.UserID),
				zap.String("notification_id", notification.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}
