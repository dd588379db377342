package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// DashboardAnalytics 某个角色的看板快照，每次请求重新计算
type DashboardAnalytics struct {
	Role        Role      `json:"role"`
	GeneratedAt time.Time `json:"generatedAt"`
	Metrics     KPISet    `json:"metrics"`
	Charts      Charts    `json:"charts"`
}

// UnmarshalJSON 按 role 还原具体的 KPI 类型（用于缓存回读）
func (d *DashboardAnalytics) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role        Role            `json:"role"`
		GeneratedAt time.Time       `json:"generatedAt"`
		Metrics     json.RawMessage `json:"metrics"`
		Charts      Charts          `json:"charts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var metrics KPISet
	switch raw.Role {
	case RoleShipper:
		var m ShipperKPIs
		if err := json.Unmarshal(raw.Metrics, &m); err != nil {
			return err
		}
		metrics = m
	case RoleCarrier:
		var m CarrierKPIs
		if err := json.Unmarshal(raw.Metrics, &m); err != nil {
			return err
		}
		metrics = m
	case RoleDispatcher:
		var m DispatcherKPIs
		if err := json.Unmarshal(raw.Metrics, &m); err != nil {
			return err
		}
		metrics = m
	default:
		return fmt.Errorf("unknown dashboard role %q", raw.Role)
	}

	d.Role = raw.Role
	d.GeneratedAt = raw.GeneratedAt
	d.Metrics = metrics
	d.Charts = raw.Charts
	return nil
}

// KPISet 按角色区分的 KPI 集合，只能由本包中的类型实现
type KPISet interface {
	KPIRole() Role
}

// ShipperKPIs 货主 KPI
type ShipperKPIs struct {
	ActiveShipments   int64   `json:"activeShipments"`
	PendingDeliveries int64   `json:"pendingDeliveries"`
	TotalSpentMTD     float64 `json:"totalSpentMTD"`
	OnTimeRate        float64 `json:"onTimeRate"`
}

// KPIRole 实现 KPISet
func (ShipperKPIs) KPIRole() Role { return RoleShipper }

// CarrierKPIs 承运商 KPI
type CarrierKPIs struct {
	ActiveJobs    int64   `json:"activeJobs"`
	AvailableJobs int64   `json:"availableJobs"`
	RevenueMTD    float64 `json:"revenueMTD"`
	AverageRating float64 `json:"averageRating"`
}

// KPIRole 实现 KPISet
func (CarrierKPIs) KPIRole() Role { return RoleCarrier }

// DispatcherKPIs 调度员（全车队）KPI
type DispatcherKPIs struct {
	TotalActiveShipments int64   `json:"totalActiveShipments"`
	CarriersOnline       int64   `json:"carriersOnline"`
	IssuesReported       int64   `json:"issuesReported"`
	OnTimeRate           float64 `json:"onTimeRate"`
}

// KPIRole 实现 KPISet
func (DispatcherKPIs) KPIRole() Role { return RoleDispatcher }

// Charts 看板图表数据
type Charts struct {
	ShipmentStatusDistribution []StatusCount      `json:"shipmentStatusDistribution"`
	RevenueOrCostOverTime      []AmountPoint      `json:"revenueOrCostOverTime"`
	DeliveryPerformance        []PerformancePoint `json:"deliveryPerformance"`
	TopRoutes                  []RouteCount       `json:"topRoutes"`
}

// EmptyCharts 所有序列均为空数组（而非 null）
func EmptyCharts() Charts {
	return Charts{
		ShipmentStatusDistribution: []StatusCount{},
		RevenueOrCostOverTime:      []AmountPoint{},
		DeliveryPerformance:        []PerformancePoint{},
		TopRoutes:                  []RouteCount{},
	}
}

// StatusCount 状态分布
type StatusCount struct {
	Status ShipmentStatus `json:"status"`
	Count  int64          `json:"count"`
}

// AmountPoint 按天的金额
type AmountPoint struct {
	Date   string  `json:"date"` // YYYY-MM-DD (UTC)
	Amount float64 `json:"amount"`
}

// PerformancePoint 按天的准时率/延误率
type PerformancePoint struct {
	Date        string  `json:"date"`
	OnTimeRate  float64 `json:"onTimeRate"`
	DelayedRate float64 `json:"delayedRate"`
}

// RouteCount 线路运单数
type RouteCount struct {
	Route     string `json:"route"`
	Shipments int64  `json:"shipments"`
}

// Percent 计算 round(part/whole*100, 2)，whole 为 0 时返回 0
func Percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return Round2(float64(part) / float64(whole) * 100)
}

// Round2 保留两位小数
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DayKey 返回 UTC 日期键
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
