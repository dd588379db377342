package service

import (
	"context"
	"strings"
	"time"

	"freightflow/backend/internal/domain"
	"freightflow/backend/internal/storage"
)

// PreferenceService 管理用户的通知偏好，未保存的 (type, channel) 组合默认开启
type PreferenceService struct {
	repo storage.PreferenceRepository
	now  func() time.Time
}

// NewPreferenceService 创建通知偏好服务
func NewPreferenceService(repo storage.PreferenceRepository) *PreferenceService {
	return &PreferenceService{repo: repo, now: time.Now}
}

// List 返回用户已保存的偏好
func (s *PreferenceService) List(ctx context.Context, userID string) ([]domain.NotificationPreference, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	return s.repo.ListPreferences(ctx, userID)
}

// Update 批量写入偏好并返回写入后的完整列表
func (s *PreferenceService) Update(ctx context.Context, userID string, updates []domain.PreferenceUpdate) ([]domain.NotificationPreference, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if err := domain.ValidatePreferenceUpdates(updates); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rows := make([]domain.NotificationPreference, 0, len(updates))
	for _, u := range updates {
		channel, _ := domain.ParseChannel(string(u.Channel))
		rows = append(rows, domain.NotificationPreference{
			UserID:    userID,
			Type:      strings.TrimSpace(u.Type),
			Channel:   channel,
			Enabled:   u.Enabled,
			UpdatedAt: now,
		})
	}
	if err := s.repo.SavePreferences(ctx, rows); err != nil {
		return nil, err
	}
	return s.repo.ListPreferences(ctx, userID)
}

// EnabledChannels 过滤掉用户对该类型关闭的渠道，userID 为空时原样返回
func (s *PreferenceService) EnabledChannels(ctx context.Context, userID, notificationType string, channels []domain.Channel) ([]domain.Channel, error) {
	if userID == "" || len(channels) == 0 {
		return channels, nil
	}
	prefs, err := s.repo.ListPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	disabled := make(map[domain.Channel]bool)
	for _, p := range prefs {
		if p.Type == notificationType && !p.Enabled {
			disabled[p.Channel] = true
		}
	}
	enabled := make([]domain.Channel, 0, len(channels))
	for _, ch := range channels {
		if !disabled[ch] {
			enabled = append(enabled, ch)
		}
	}
	return enabled, nil
}
