package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"freightflow/backend/internal/config"
	"freightflow/backend/internal/domain"
)

// Store 基于 GORM 的关系型存储实现（PostgreSQL 或 MySQL）
type Store struct {
	db      *gorm.DB
	dialect string
}

// Open 按配置选择方言并创建存储实例
func Open(cfg config.DatabaseConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	store, err := NewStoreWithDialector(dialector, cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例，不执行迁移
func NewStoreWithDialector(dialector gorm.Dialector, cfg config.DatabaseConfig) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &Store{db: db, dialect: dialector.Name()}, nil
}

// Migrate 自动迁移数据库表结构
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&domain.Shipment{},
		&domain.Activity{},
		&domain.InAppNotification{},
		&domain.NotificationPreference{},
	)
}

// Dialect 返回方言名（postgres / mysql）
func (s *Store) Dialect() string {
	return s.dialect
}

// SQLDB 返回底层连接池，用于健康检查与连接池指标
func (s *Store) SQLDB() (*sql.DB, error) {
	return s.db.DB()
}

// wrap 将数据库错误包装为依赖不可用
func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return domain.Upstream("database", err)
}

// scoped 追加角色范围谓词，任何查询都限定在租户内
func scoped(db *gorm.DB, scope domain.Scope) *gorm.DB {
	db = db.Where("tenant_id = ?", scope.TenantID)
	switch scope.Role {
	case domain.RoleShipper:
		return db.Where("shipper_id = ?", scope.UserID)
	case domain.RoleCarrier:
		return db.Where("carrier_id = ?", scope.UserID)
	case domain.RoleDispatcher:
		return db
	default:
		return db.Where("1 = 0")
	}
}

// keyset 追加游标谓词
func keyset(db *gorm.DB, after *domain.Cursor) *gorm.DB {
	if after == nil {
		return db
	}
	return db.Where("(created_at < ? OR (created_at = ? AND id < ?))", after.CreatedAt, after.CreatedAt, after.ID)
}

const newestFirst = "created_at DESC, id DESC"

// ========== Shipment Repository ==========

// SaveShipment 保存运单
func (s *Store) SaveShipment(ctx context.Context, shipment *domain.Shipment) error {
	return wrap(s.db.WithContext(ctx).Save(shipment).Error)
}

// GetShipment 获取范围内的运单
func (s *Store) GetShipment(ctx context.Context, scope domain.Scope, id string) (*domain.Shipment, error) {
	var shipment domain.Shipment
	err := scoped(s.db.WithContext(ctx), scope).Where("id = ?", id).First(&shipment).Error
	if err != nil {
		return nil, wrap(err)
	}
	return &shipment, nil
}

// ListShipments 偏移分页
func (s *Store) ListShipments(ctx context.Context, scope domain.Scope, offset, limit int) ([]domain.Shipment, int64, error) {
	var total int64
	query := scoped(s.db.WithContext(ctx).Model(&domain.Shipment{}), scope)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrap(err)
	}

	shipments := make([]domain.Shipment, 0)
	if int64(offset) >= total {
		return shipments, total, nil
	}

	err := scoped(s.db.WithContext(ctx), scope).
		Order(newestFirst).
		Offset(offset).
		Limit(limit).
		Find(&shipments).Error
	if err != nil {
		return nil, 0, wrap(err)
	}
	return shipments, total, nil
}

// ListShipmentsAfter 游标分页
func (s *Store) ListShipmentsAfter(ctx context.Context, scope domain.Scope, after *domain.Cursor, limit int) ([]domain.Shipment, error) {
	shipments := make([]domain.Shipment, 0, limit)
	err := keyset(scoped(s.db.WithContext(ctx), scope), after).
		Order(newestFirst).
		Limit(limit).
		Find(&shipments).Error
	return shipments, wrap(err)
}

// ========== Activity Repository ==========

// SaveActivity 追加动态
func (s *Store) SaveActivity(ctx context.Context, activity *domain.Activity) error {
	return wrap(s.db.WithContext(ctx).Create(activity).Error)
}

// ListActivitiesAfter 游标分页读取动态流
func (s *Store) ListActivitiesAfter(ctx context.Context, scope domain.Scope, after *domain.Cursor, limit int) ([]domain.Activity, error) {
	activities := make([]domain.Activity, 0, limit)
	err := keyset(scoped(s.db.WithContext(ctx), scope), after).
		Order(newestFirst).
		Limit(limit).
		Find(&activities).Error
	return activities, wrap(err)
}

// ========== Analytics Repository ==========

// CountShipmentsByStatus 按状态分组计数
func (s *Store) CountShipmentsByStatus(ctx context.Context, scope domain.Scope) ([]domain.StatusCount, error) {
	counts := make([]domain.StatusCount, 0)
	err := scoped(s.db.WithContext(ctx).Model(&domain.Shipment{}), scope).
		Select("status, COUNT(*) AS count").
		Group("status").
		Order("status").
		Scan(&counts).Error
	return counts, wrap(err)
}

// CountOpenJobs 统计待接单运单
func (s *Store) CountOpenJobs(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.Shipment{}).
		Where("tenant_id = ? AND status = ? AND (carrier_id = '' OR carrier_id IS NULL)", tenantID, domain.ShipmentPending).
		Count(&n).Error
	return n, wrap(err)
}

// ListShipmentsSince 返回窗口内创建的运单
func (s *Store) ListShipmentsSince(ctx context.Context, scope domain.Scope, since time.Time, limit int) ([]domain.Shipment, error) {
	shipments := make([]domain.Shipment, 0)
	err := scoped(s.db.WithContext(ctx), scope).
		Where("created_at >= ?", since).
		Order(newestFirst).
		Limit(limit).
		Find(&shipments).Error
	return shipments, wrap(err)
}

// CountActivities 统计窗口内某类动态
func (s *Store) CountActivities(ctx context.Context, scope domain.Scope, activityType domain.ActivityType, since time.Time) (int64, error) {
	var n int64
	err := scoped(s.db.WithContext(ctx).Model(&domain.Activity{}), scope).
		Where("type = ? AND created_at >= ?", activityType, since).
		Count(&n).Error
	return n, wrap(err)
}

// CountDistinctCarriers 统计不同承运商数量
func (s *Store) CountDistinctCarriers(ctx context.Context, tenantID string, statuses []domain.ShipmentStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.Shipment{}).
		Where("tenant_id = ? AND carrier_id <> '' AND status IN ?", tenantID, statuses).
		Distinct("carrier_id").
		Count(&n).Error
	return n, wrap(err)
}

// ========== Notification Repository ==========

// CreateNotification 保存站内通知
func (s *Store) CreateNotification(ctx context.Context, notification *domain.InAppNotification) error {
	return wrap(s.db.WithContext(ctx).Create(notification).Error)
}

// ListNotifications 游标分页读取用户通知
func (s *Store) ListNotifications(ctx context.Context, userID string, after *domain.Cursor, limit int) ([]domain.InAppNotification, error) {
	notifications := make([]domain.InAppNotification, 0, limit)
	err := keyset(s.db.WithContext(ctx).Where("user_id = ?", userID), after).
		Order(newestFirst).
		Limit(limit).
		Find(&notifications).Error
	return notifications, wrap(err)
}

// CountUnreadNotifications 统计未读通知
func (s *Store) CountUnreadNotifications(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.InAppNotification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	return n, wrap(err)
}

// MarkNotificationRead 标记单条通知已读
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) error {
	result := s.db.WithContext(ctx).Model(&domain.InAppNotification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if result.Error != nil {
		return wrap(result.Error)
	}
	if result.RowsAffected == 0 {
		// 已读记录在 MySQL 下 RowsAffected 也为 0，需要区分不存在的情况
		var n int64
		if err := s.db.WithContext(ctx).Model(&domain.InAppNotification{}).
			Where("id = ? AND user_id = ?", id, userID).Count(&n).Error; err != nil {
			return wrap(err)
		}
		if n == 0 {
			return domain.ErrNotFound
		}
	}
	return nil
}

// MarkAllNotificationsRead 标记全部已读
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&domain.InAppNotification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return result.RowsAffected, wrap(result.Error)
}

// ========== Preference Repository ==========

// ListPreferences 读取用户偏好
func (s *Store) ListPreferences(ctx context.Context, userID string) ([]domain.NotificationPreference, error) {
	preferences := make([]domain.NotificationPreference, 0)
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("type, channel").
		Find(&preferences).Error
	return preferences, wrap(err)
}

// SavePreferences 按主键 upsert 偏好
func (s *Store) SavePreferences(ctx context.Context, preferences []domain.NotificationPreference) error {
	if len(preferences) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "type"}, {Name: "channel"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
		}).
		Create(&preferences).Error
	return wrap(err)
}

// Ping 检查数据库连接
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return domain.Upstream("database", err)
	}
	return wrap(sqlDB.PingContext(ctx))
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
