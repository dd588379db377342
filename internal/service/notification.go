package service

import (
	"context"

	"freightflow/backend/internal/domain"
	"freightflow/backend/internal/storage"
)

// NotificationList 用户的站内通知列表
type NotificationList struct {
	*domain.CursorPage[domain.InAppNotification]
	UnreadCount int64 `json:"unreadCount"`
}

// NotificationService 封装站内通知的读取与已读标记
type NotificationService struct {
	repo storage.NotificationRepository
}

// NewNotificationService 创建站内通知服务
func NewNotificationService(repo storage.NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

// List 游标分页列出用户通知，并附带未读数量
func (s *NotificationService) List(ctx context.Context, userID string, q domain.CursorQuery) (*NotificationList, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	q, after, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListNotifications(ctx, userID, after, q.Limit+1)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &NotificationList{
		CursorPage:  domain.NewCursorPage(rows, q.Limit),
		UnreadCount: unread,
	}, nil
}

// MarkRead 标记单条通知已读，不属于该用户时返回 domain.ErrNotFound
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if userID == "" {
		return domain.ErrUnauthenticated
	}
	if id == "" {
		return domain.NewValidationError("id", "is required")
	}
	return s.repo.MarkNotificationRead(ctx, userID, id)
}

// MarkAllRead 标记用户全部通知已读，返回受影响数量
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, domain.ErrUnauthenticated
	}
	return s.repo.MarkAllNotificationsRead(ctx, userID)
}
