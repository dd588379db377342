package domain

import "strings"

// Role 调用方的逻辑用户类型，决定可见数据与 KPI
type Role string

const (
	RoleShipper    Role = "SHIPPER"
	RoleCarrier    Role = "CARRIER"
	RoleDispatcher Role = "DISPATCHER"
)

// Roles 返回所有支持的角色
func Roles() []Role {
	return []Role{RoleShipper, RoleCarrier, RoleDispatcher}
}

// ParseRole 解析角色（大小写不敏感）
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(value)))
	if !role.Valid() {
		if value == "" {
			return "", NewValidationError("role", "is required")
		}
		return "", NewValidationError("role", "must be one of SHIPPER, CARRIER, DISPATCHER")
	}
	return role, nil
}

// Valid 判断角色是否受支持
func (r Role) Valid() bool {
	switch r {
	case RoleShipper, RoleCarrier, RoleDispatcher:
		return true
	}
	return false
}

// Scope 一次请求的数据可见范围
//
// SHIPPER 只能看到 shipper_id 为自己的记录，CARRIER 只能看到 carrier_id 为自己的记录，
// DISPATCHER 看到整个租户的记录。任何查询都不会跨越 TenantID。
type Scope struct {
	Role     Role
	UserID   string
	TenantID string
}

// Validate 校验范围是否完整
func (s Scope) Validate() error {
	var v Violations
	if !s.Role.Valid() {
		v.Add("role", "must be one of SHIPPER, CARRIER, DISPATCHER")
	}
	if s.TenantID == "" {
		v.Add("tenantId", "is required")
	}
	if s.UserID == "" && s.Role != RoleDispatcher {
		v.Add("userId", "is required")
	}
	return v.Err()
}

// Parties 记录涉及的租户与参与方，用于范围过滤。
//
// 复合索引按所在表命名（idx_<table>_tenant 等），嵌入 Shipment 时与 Status 组成
// (tenant_id, status) 与 (tenant_id, shipper_id|carrier_id, status)。
type Parties struct {
	TenantID  string `json:"-" gorm:"type:varchar(36);not null;index:,composite:tenant,priority:1;index:,composite:tenant_shipper,priority:1;index:,composite:tenant_carrier,priority:1"`
	ShipperID string `json:"-" gorm:"type:varchar(36);index:,composite:tenant_shipper,priority:2"`
	CarrierID string `json:"-" gorm:"type:varchar(36);index:,composite:tenant_carrier,priority:2"`
}

// VisibleTo 判断记录是否在范围内
func (p Parties) VisibleTo(s Scope) bool {
	if p.TenantID != s.TenantID {
		return false
	}
	switch s.Role {
	case RoleShipper:
		return p.ShipperID == s.UserID
	case RoleCarrier:
		return p.CarrierID == s.UserID
	case RoleDispatcher:
		return true
	}
	return false
}
