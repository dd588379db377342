package memory

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"freightflow/backend/internal/domain"
)

var errStoreClosed = errors.New("store closed")

// Store 使用内存保存运单、动态与站内通知，主要用于开发验证与测试。
type Store struct {
	mu            sync.RWMutex
	shipments     map[string]*domain.Shipment
	activities    map[string]*domain.Activity
	notifications map[string]*domain.InAppNotification // notificationID -> notification
	preferences   map[preferenceKey]domain.NotificationPreference
	closed        bool
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		shipments:     make(map[string]*domain.Shipment),
		activities:    make(map[string]*domain.Activity),
		notifications: make(map[string]*domain.InAppNotification),
		preferences:   make(map[preferenceKey]domain.NotificationPreference),
	}
}

type preferenceKey struct {
	userID  string
	kind    string
	channel domain.Channel
}

// newestFirst 按 created_at DESC, id DESC 排序
func newestFirst(aCreated time.Time, aID string, bCreated time.Time, bID string) int {
	if c := bCreated.Compare(aCreated); c != 0 {
		return c
	}
	return cmp.Compare(bID, aID)
}

// ========== Shipment Repository ==========

// SaveShipment 保存或覆盖运单。
func (s *Store) SaveShipment(ctx context.Context, shipment *domain.Shipment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *shipment
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now().UTC()
	}
	if copied.UpdatedAt.IsZero() {
		copied.UpdatedAt = copied.CreatedAt
	}
	s.shipments[copied.ID] = &copied
	return nil
}

// GetShipment 获取范围内的运单，不存在或不可见时返回 domain.ErrNotFound。
func (s *Store) GetShipment(ctx context.Context, scope domain.Scope, id string) (*domain.Shipment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	shipment, ok := s.shipments[id]
	if !ok || !shipment.VisibleTo(scope) {
		return nil, domain.ErrNotFound
	}
	copied := *shipment
	return &copied, nil
}

// scopedShipments 返回范围内按时间倒序排列的运单副本
func (s *Store) scopedShipments(scope domain.Scope, keep func(*domain.Shipment) bool) []domain.Shipment {
	out := make([]domain.Shipment, 0)
	for _, shipment := range s.shipments {
		if !shipment.VisibleTo(scope) {
			continue
		}
		if keep != nil && !keep(shipment) {
			continue
		}
		out = append(out, *shipment)
	}
	slices.SortFunc(out, func(a, b domain.Shipment) int {
		return newestFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	return out
}

// ListShipments 偏移分页。
func (s *Store) ListShipments(ctx context.Context, scope domain.Scope, offset, limit int) ([]domain.Shipment, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.scopedShipments(scope, nil)
	total := int64(len(all))
	if offset >= len(all) {
		return []domain.Shipment{}, total, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], total, nil
}

// ListShipmentsAfter 游标分页，返回严格位于游标之后的最多 limit 条记录。
func (s *Store) ListShipmentsAfter(ctx context.Context, scope domain.Scope, after *domain.Cursor, limit int) ([]domain.Shipment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.scopedShipments(scope, func(sh *domain.Shipment) bool {
		return after == nil || after.Before(sh.CreatedAt, sh.ID)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// ========== Activity Repository ==========

// SaveActivity 追加动态记录。
func (s *Store) SaveActivity(ctx context.Context, activity *domain.Activity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *activity
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now().UTC()
	}
	s.activities[copied.ID] = &copied
	return nil
}

// ListActivitiesAfter 游标分页读取动态流。
func (s *Store) ListActivitiesAfter(ctx context.Context, scope domain.Scope, after *domain.Cursor, limit int) ([]domain.Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.Activity, 0)
	for _, a := range s.activities {
		if !a.VisibleTo(scope) {
			continue
		}
		if after != nil && !after.Before(a.CreatedAt, a.ID) {
			continue
		}
		rows = append(rows, *a)
	}
	slices.SortFunc(rows, func(a, b domain.Activity) int {
		return newestFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// ========== Analytics Repository ==========

// CountShipmentsByStatus 按状态分组计数，结果按状态名排序。
func (s *Store) CountShipmentsByStatus(ctx context.Context, scope domain.Scope) ([]domain.StatusCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.ShipmentStatus]int64)
	for _, shipment := range s.shipments {
		if shipment.VisibleTo(scope) {
			counts[shipment.Status]++
		}
	}

	out := make([]domain.StatusCount, 0, len(counts))
	for status, count := range counts {
		out = append(out, domain.StatusCount{Status: status, Count: count})
	}
	slices.SortFunc(out, func(a, b domain.StatusCount) int {
		return cmp.Compare(a.Status, b.Status)
	})
	return out, nil
}

// CountOpenJobs 统计待接单运单。
func (s *Store) CountOpenJobs(ctx context.Context, tenantID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, shipment := range s.shipments {
		if shipment.TenantID == tenantID && shipment.Status == domain.ShipmentPending && shipment.CarrierID == "" {
			n++
		}
	}
	return n, nil
}

// ListShipmentsSince 返回窗口内创建的运单。
func (s *Store) ListShipmentsSince(ctx context.Context, scope domain.Scope, since time.Time, limit int) ([]domain.Shipment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.scopedShipments(scope, func(sh *domain.Shipment) bool {
		return !sh.CreatedAt.Before(since)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// CountActivities 统计窗口内某类动态。
func (s *Store) CountActivities(ctx context.Context, scope domain.Scope, activityType domain.ActivityType, since time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, a := range s.activities {
		if a.Type == activityType && a.VisibleTo(scope) && !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// CountDistinctCarriers 统计不同承运商数量。
func (s *Store) CountDistinctCarriers(ctx context.Context, tenantID string, statuses []domain.ShipmentStatus) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	carriers := make(map[string]struct{})
	for _, shipment := range s.shipments {
		if shipment.TenantID != tenantID || shipment.CarrierID == "" {
			continue
		}
		if slices.Contains(statuses, shipment.Status) {
			carriers[shipment.CarrierID] = struct{}{}
		}
	}
	return int64(len(carriers)), nil
}

// ========== Notification Repository ==========

// CreateNotification 保存站内通知。
func (s *Store) CreateNotification(ctx context.Context, notification *domain.InAppNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *notification
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now().UTC()
	}
	s.notifications[copied.ID] = &copied
	return nil
}

// ListNotifications 游标分页读取用户的站内通知。
func (s *Store) ListNotifications(ctx context.Context, userID string, after *domain.Cursor, limit int) ([]domain.InAppNotification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.InAppNotification, 0)
	for _, n := range s.notifications {
		if n.UserID != userID {
			continue
		}
		if after != nil && !after.Before(n.CreatedAt, n.ID) {
			continue
		}
		rows = append(rows, *n)
	}
	slices.SortFunc(rows, func(a, b domain.InAppNotification) int {
		return newestFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// CountUnreadNotifications 统计未读通知。
func (s *Store) CountUnreadNotifications(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, notification := range s.notifications {
		if notification.UserID == userID && !notification.IsRead {
			n++
		}
	}
	return n, nil
}

// MarkNotificationRead 标记单条通知已读，不属于该用户时返回 domain.ErrNotFound。
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	notification, ok := s.notifications[id]
	if !ok || notification.UserID != userID {
		return domain.ErrNotFound
	}
	notification.IsRead = true
	return nil
}

// MarkAllNotificationsRead 标记用户全部通知已读，返回受影响数量。
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, notification := range s.notifications {
		if notification.UserID == userID && !notification.IsRead {
			notification.IsRead = true
			n++
		}
	}
	return n, nil
}

// ========== Preference Repository ==========

// ListPreferences 返回用户已保存的偏好。
func (s *Store) ListPreferences(ctx context.Context, userID string) ([]domain.NotificationPreference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.NotificationPreference, 0)
	for key, pref := range s.preferences {
		if key.userID == userID {
			rows = append(rows, pref)
		}
	}
	slices.SortFunc(rows, func(a, b domain.NotificationPreference) int {
		if c := cmp.Compare(a.Type, b.Type); c != 0 {
			return c
		}
		return cmp.Compare(a.Channel, b.Channel)
	})
	return rows, nil
}

// SavePreferences 插入或覆盖偏好。
func (s *Store) SavePreferences(ctx context.Context, preferences []domain.NotificationPreference) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pref := range preferences {
		if pref.UpdatedAt.IsZero() {
			pref.UpdatedAt = time.Now().UTC()
		}
		s.preferences[preferenceKey{userID: pref.UserID, kind: pref.Type, channel: pref.Channel}] = pref
	}
	return nil
}

// Ping 内存存储在关闭前始终可用。
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.Upstream("memory store", errStoreClosed)
	}
	return ctx.Err()
}

// Close 关闭存储。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
