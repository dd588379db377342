package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationPreference 用户对某类通知在某个渠道上的开关，未保存的组合视为开启
type NotificationPreference struct {
	UserID    string    `json:"userId" gorm:"primaryKey;type:varchar(64)"`
	Type      string    `json:"type" gorm:"primaryKey;type:varchar(64)"`
	Channel   Channel   `json:"channel" gorm:"primaryKey;type:varchar(16)"`
	Enabled   bool      `json:"enabled" gorm:"not null"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (NotificationPreference) TableName() string {
	return "notification_preferences"
}

// PreferenceUpdate 单条偏好修改
type PreferenceUpdate struct {
	Type    string  `json:"type"`
	Channel Channel `json:"channel"`
	Enabled bool    `json:"enabled"`
}

// ValidatePreferenceUpdates 校验批量偏好修改
func ValidatePreferenceUpdates(updates []PreferenceUpdate) error {
	var v Violations
	if len(updates) == 0 {
		v.Add("preferences", "must contain at least one entry")
	}
	for i, u := range updates {
		if strings.TrimSpace(u.Type) == "" {
			v.Add(fmt.Sprintf("preferences[%d].type", i), "is required")
		}
		if _, ok := ParseChannel(string(u.Channel)); !ok {
			v.Add(fmt.Sprintf("preferences[%d].channel", i), "must be one of: email, in_app")
		}
	}
	return v.Err()
}
