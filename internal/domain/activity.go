package domain

import "time"

// ActivityType 动态类型
type ActivityType string

const (
	ActivityShipmentCreated  ActivityType = "shipment_created"
	ActivityStatusUpdated    ActivityType = "status_updated"
	ActivityPaymentReceived  ActivityType = "payment_received"
	ActivityCarrierAssigned  ActivityType = "carrier_assigned"
	ActivityIssueReported    ActivityType = "issue_reported"
	ActivityCarrierCheckedIn ActivityType = "carrier_checked_in"
)

// Activity 持久化的动态记录，创建后不可修改
type Activity struct {
	ID             string       `gorm:"primaryKey;type:varchar(36)"`
	Type           ActivityType `gorm:"type:varchar(32);index"`
	Title          string       `gorm:"type:varchar(255);not null"`
	Description    string       `gorm:"type:text"`
	ActorName      string       `gorm:"type:varchar(255)"`
	ActorAvatarURL string       `gorm:"type:varchar(512)"`
	EntityType     string       `gorm:"type:varchar(32)"`
	EntityID       string       `gorm:"type:varchar(36)"`
	IsUnread       bool         `gorm:"default:true"`
	Parties        `gorm:"embedded"`
	CreatedAt      time.Time `gorm:"index"`
}

// TableName 指定表名
func (Activity) TableName() string {
	return "activities"
}

// Item 投影为动态流视图
func (a *Activity) Item() ActivityItem {
	item := ActivityItem{
		ID:          a.ID,
		Type:        a.Type,
		Title:       a.Title,
		Description: a.Description,
		CreatedAt:   a.CreatedAt.UTC(),
		IsUnread:    a.IsUnread,
		Actor:       Actor{Name: a.ActorName, AvatarURL: a.ActorAvatarURL},
	}
	if a.EntityType != "" && a.EntityID != "" {
		item.Entity = &EntityRef{Type: a.EntityType, ID: a.EntityID}
	}
	return item
}

// Actor 动态的发起者
type Actor struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// EntityRef 动态引用的业务对象
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ActivityItem 动态流条目
type ActivityItem struct {
	ID          string       `json:"id"`
	Type        ActivityType `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	IsUnread    bool         `json:"isUnread"`
	Actor       Actor        `json:"actor"`
	Entity      *EntityRef   `json:"entity,omitempty"`
}

// CursorKey 实现游标分页的排序键
func (i ActivityItem) CursorKey() Cursor {
	return Cursor{CreatedAt: i.CreatedAt, ID: i.ID}
}
