package service

import (
	"context"

	"freightflow/backend/internal/domain"
	"freightflow/backend/internal/monitoring"
	"freightflow/backend/internal/storage"
)

// FeedService 提供近期运单与动态流的分页读取
type FeedService struct {
	shipments  storage.ShipmentRepository
	activities storage.ActivityRepository
	metrics    *monitoring.Metrics
}

// NewFeedService 创建动态流服务
func NewFeedService(shipments storage.ShipmentRepository, activities storage.ActivityRepository, metrics *monitoring.Metrics) *FeedService {
	return &FeedService{shipments: shipments, activities: activities, metrics: metrics}
}

// RecentShipments 偏移分页读取范围内的运单，超出末页时返回空列表
func (s *FeedService) RecentShipments(ctx context.Context, scope domain.Scope, q domain.OffsetQuery) (*domain.Page[domain.RecentShipment], error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	s.metrics.RecordFeedRequest("shipments", "offset")

	rows, total, err := s.shipments.ListShipments(ctx, scope, q.Offset(), q.PageSize)
	if err != nil {
		return nil, err
	}
	items := make([]domain.RecentShipment, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].Recent())
	}
	return domain.NewPage(items, total, q.Page, q.PageSize), nil
}

// RecentShipmentsCursor 游标分页读取范围内的运单
func (s *FeedService) RecentShipmentsCursor(ctx context.Context, scope domain.Scope, q domain.CursorQuery) (*domain.CursorPage[domain.RecentShipment], error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	q, after, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	s.metrics.RecordFeedRequest("shipments", "cursor")

	rows, err := s.shipments.ListShipmentsAfter(ctx, scope, after, q.Limit+1)
	if err != nil {
		return nil, err
	}
	items := make([]domain.RecentShipment, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].Recent())
	}
	return domain.NewCursorPage(items, q.Limit), nil
}

// Activity 游标分页读取动态流，多取一条判断是否有下一页
func (s *FeedService) Activity(ctx context.Context, scope domain.Scope, q domain.CursorQuery) (*domain.CursorPage[domain.ActivityItem], error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	q, after, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	s.metrics.RecordFeedRequest("activity", "cursor")

	rows, err := s.activities.ListActivitiesAfter(ctx, scope, after, q.Limit+1)
	if err != nil {
		return nil, err
	}
	items := make([]domain.ActivityItem, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].Item())
	}
	return domain.NewCursorPage(items, q.Limit), nil
}

// Shipment 读取单个运单，范围外与不存在同样返回 domain.ErrNotFound
func (s *FeedService) Shipment(ctx context.Context, scope domain.Scope, id string) (*domain.RecentShipment, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, domain.NewValidationError("id", "is required")
	}
	shipment, err := s.shipments.GetShipment(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	recent := shipment.Recent()
	return &recent, nil
}
