package storage

import (
	"context"
	"time"

	"freightflow/backend/internal/domain"
)

// ShipmentRepository 定义运单读取操作（写入仅用于种子数据与测试）。
//
// 所有查询都按 scope 过滤，排序为 created_at DESC, id DESC。
type ShipmentRepository interface {
	SaveShipment(ctx context.Context, shipment *domain.Shipment) error
	GetShipment(ctx context.Context, scope domain.Scope, id string) (*domain.Shipment, error)
	ListShipments(ctx context.Context, scope domain.Scope, offset, limit int) ([]domain.Shipment, int64, error)
	ListShipmentsAfter(ctx context.Context, scope domain.Scope, after *domain.Cursor, limit int) ([]domain.Shipment, error)
}

// ActivityRepository 定义动态流存取操作。
type ActivityRepository interface {
	SaveActivity(ctx context.Context, activity *domain.Activity) error
	ListActivitiesAfter(ctx context.Context, scope domain.Scope, after *domain.Cursor, limit int) ([]domain.Activity, error)
}

// AnalyticsRepository 定义看板聚合所需的有界查询。
type AnalyticsRepository interface {
	// CountShipmentsByStatus 按状态分组计数
	CountShipmentsByStatus(ctx context.Context, scope domain.Scope) ([]domain.StatusCount, error)
	// CountOpenJobs 统计租户内待接单（pending 且未指派承运商）的运单
	CountOpenJobs(ctx context.Context, tenantID string) (int64, error)
	// ListShipmentsSince 返回 since 之后创建的运单，最多 limit 条，最新的在前
	ListShipmentsSince(ctx context.Context, scope domain.Scope, since time.Time, limit int) ([]domain.Shipment, error)
	// CountActivities 统计 since 之后某类动态的数量
	CountActivities(ctx context.Context, scope domain.Scope, activityType domain.ActivityType, since time.Time) (int64, error)
	// CountDistinctCarriers 统计处于给定状态运单上的不同承运商数量
	CountDistinctCarriers(ctx context.Context, tenantID string, statuses []domain.ShipmentStatus) (int64, error)
}

// NotificationRepository 定义站内通知存取操作。
type NotificationRepository interface {
	CreateNotification(ctx context.Context, notification *domain.InAppNotification) error
	ListNotifications(ctx context.Context, userID string, after *domain.Cursor, limit int) ([]domain.InAppNotification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int64, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
}

// PreferenceRepository 定义通知偏好存取操作。
type PreferenceRepository interface {
	// ListPreferences 返回用户已保存的偏好，按 type, channel 排序
	ListPreferences(ctx context.Context, userID string) ([]domain.NotificationPreference, error)
	// SavePreferences 按 (user_id, type, channel) 插入或覆盖
	SavePreferences(ctx context.Context, preferences []domain.NotificationPreference) error
}

// Store 聚合所有存储接口。
type Store interface {
	ShipmentRepository
	ActivityRepository
	AnalyticsRepository
	NotificationRepository
	PreferenceRepository

	Ping(ctx context.Context) error
	Close() error
}
