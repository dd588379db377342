package domain

import "time"

// ShipmentStatus 运单状态
type ShipmentStatus string

const (
	ShipmentPending        ShipmentStatus = "pending"
	ShipmentAccepted       ShipmentStatus = "accepted"
	ShipmentInTransit      ShipmentStatus = "in_transit"
	ShipmentOutForDelivery ShipmentStatus = "out_for_delivery"
	ShipmentDelayed        ShipmentStatus = "delayed"
	ShipmentDelivered      ShipmentStatus = "delivered"
	ShipmentCompleted      ShipmentStatus = "completed"
	ShipmentCancelled      ShipmentStatus = "cancelled"
	ShipmentException      ShipmentStatus = "exception"
)

// ActiveStatuses 在途中（已接单但未送达）的状态
func ActiveStatuses() []ShipmentStatus {
	return []ShipmentStatus{ShipmentAccepted, ShipmentInTransit, ShipmentOutForDelivery, ShipmentDelayed}
}

// IsActive 判断是否为在途状态
func (s ShipmentStatus) IsActive() bool {
	switch s {
	case ShipmentAccepted, ShipmentInTransit, ShipmentOutForDelivery, ShipmentDelayed:
		return true
	}
	return false
}

// IsFinished 判断是否已送达
func (s ShipmentStatus) IsFinished() bool {
	return s == ShipmentDelivered || s == ShipmentCompleted
}

// Valid 判断状态是否合法
func (s ShipmentStatus) Valid() bool {
	switch s {
	case ShipmentPending, ShipmentAccepted, ShipmentInTransit, ShipmentOutForDelivery, ShipmentDelayed,
		ShipmentDelivered, ShipmentCompleted, ShipmentCancelled, ShipmentException:
		return true
	}
	return false
}

// Shipment 运单实体，由外部协作方写入，本服务只读
type Shipment struct {
	ID             string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TrackingNumber string `json:"trackingNumber" gorm:"type:varchar(64);uniqueIndex"`
	Parties        `gorm:"embedded"`
	CarrierName    string         `json:"carrierName" gorm:"type:varchar(255)"`
	Origin         string         `json:"origin" gorm:"type:varchar(255)"`
	Destination    string         `json:"destination" gorm:"type:varchar(255)"`
	Status         ShipmentStatus `json:"status" gorm:"type:varchar(32);index:,composite:tenant,priority:2;index:,composite:tenant_shipper,priority:3;index:,composite:tenant_carrier,priority:3"`
	Price          float64        `json:"price" gorm:"type:decimal(12,2);default:0"`
	Rating         float64        `json:"rating" gorm:"type:decimal(3,2);default:0"` // 0 表示未评分
	ETA            time.Time      `json:"eta" gorm:"column:eta"`
	DeliveredAt    *time.Time     `json:"deliveredAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt" gorm:"index"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// TableName 指定表名
func (Shipment) TableName() string {
	return "shipments"
}

// OnTime 已送达且送达时间不晚于 ETA
func (s *Shipment) OnTime() bool {
	return s.Status.IsFinished() && s.DeliveredAt != nil && !s.DeliveredAt.After(s.ETA)
}

// Route 返回 "起点 → 终点"
func (s *Shipment) Route() string {
	return s.Origin + " → " + s.Destination
}

// Recent 投影为列表视图
func (s *Shipment) Recent() RecentShipment {
	carrier := s.CarrierName
	if carrier == "" && s.CarrierID == "" {
		carrier = "Unassigned"
	}
	return RecentShipment{
		ID:             s.ID,
		TrackingNumber: s.TrackingNumber,
		Status:         s.Status,
		Origin:         s.Origin,
		Destination:    s.Destination,
		Carrier:        carrier,
		ETA:            s.ETA.UTC(),
		CreatedAt:      s.CreatedAt.UTC(),
	}
}

// RecentShipment 近期运单列表项
type RecentShipment struct {
	ID             string         `json:"id"`
	TrackingNumber string         `json:"trackingNumber"`
	Status         ShipmentStatus `json:"status"`
	Origin         string         `json:"origin"`
	Destination    string         `json:"destination"`
	Carrier        string         `json:"carrier"`
	ETA            time.Time      `json:"eta"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// CursorKey 实现游标分页的排序键
func (r RecentShipment) CursorKey() Cursor {
	return Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
}
