package domain

import (
	"net/mail"
	"strings"
	"time"
)

// Channel 通知渠道
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in_app"
)

// ParseChannel 解析渠道名，接受 "in-app" 与 "in_app"
func ParseChannel(value string) (Channel, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "email":
		return ChannelEmail, true
	case "in_app", "in-app", "inapp":
		return ChannelInApp, true
	}
	return "", false
}

// UnmarshalText 将已知别名归一为标准渠道名，未知值原样保留交由校验报告
func (c *Channel) UnmarshalText(text []byte) error {
	if ch, ok := ParseChannel(string(text)); ok {
		*c = ch
		return nil
	}
	*c = Channel(text)
	return nil
}

// NotificationPayload 一次通知分发请求，不由分发器持久化
type NotificationPayload struct {
	Type         string            `json:"type,omitempty"`
	UserID       string            `json:"userId"`
	UserEmail    string            `json:"userEmail"`
	Subject      string            `json:"subject"`
	EmailBody    string            `json:"emailBody"`
	InAppMessage string            `json:"inAppMessage"`
	Channels     []Channel         `json:"channels"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ValidateNotificationPayload 校验分发请求，返回所有违反的约束
func ValidateNotificationPayload(p NotificationPayload) error {
	var v Violations

	if len(p.Channels) == 0 {
		v.Add("channels", "must not be empty")
	}

	seen := make(map[Channel]bool, len(p.Channels))
	for _, ch := range p.Channels {
		if ch != ChannelEmail && ch != ChannelInApp {
			v.Add("channels", "unsupported channel "+string(ch))
			continue
		}
		if seen[ch] {
			v.Add("channels", "duplicate channel "+string(ch))
			continue
		}
		seen[ch] = true
	}

	if seen[ChannelEmail] {
		if strings.TrimSpace(p.UserEmail) == "" {
			v.Add("userEmail", "is required for email channel")
		} else if !ValidEmailAddress(p.UserEmail) {
			v.Add("userEmail", "must be a valid email address")
		}
		if strings.TrimSpace(p.Subject) == "" {
			v.Add("subject", "is required for email channel")
		}
		if strings.TrimSpace(p.EmailBody) == "" {
			v.Add("emailBody", "is required for email channel")
		}
	}

	if seen[ChannelInApp] {
		if strings.TrimSpace(p.UserID) == "" {
			v.Add("userId", "is required for in_app channel")
		}
		if strings.TrimSpace(p.InAppMessage) == "" {
			v.Add("inAppMessage", "is required for in_app channel")
		}
	}

	return v.Err()
}

// ValidEmailAddress 判断是否为单个裸邮箱地址，不接受显示名或尖括号形式
func ValidEmailAddress(address string) bool {
	if len(address) > 254 {
		return false
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return false
	}
	local, host, ok := strings.Cut(parsed.Address, "@")
	return ok && local != "" && strings.Contains(host, ".")
}

// Outcome 单个渠道的投递结果
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
)

// ChannelOutcome 单个渠道的投递详情
type ChannelOutcome struct {
	Channel  Channel `json:"channel"`
	Outcome  Outcome `json:"outcome"`
	Reason   string  `json:"reason,omitempty"`
	Attempts int     `json:"attempts"`
}

// DispatchStatus 整体分发结果
type DispatchStatus string

const (
	DispatchDelivered DispatchStatus = "delivered"
	DispatchPartial   DispatchStatus = "partial"
	DispatchFailed    DispatchStatus = "failed"
)

// DispatchResult 分发结果，按请求顺序列出每个渠道
type DispatchResult struct {
	Status   DispatchStatus   `json:"status"`
	Outcomes []ChannelOutcome `json:"outcomes"`
}

// Summarize 根据各渠道结果计算整体状态
func Summarize(outcomes []ChannelOutcome) DispatchStatus {
	delivered := 0
	for _, o := range outcomes {
		if o.Outcome == OutcomeDelivered {
			delivered++
		}
	}
	switch {
	case delivered == len(outcomes):
		return DispatchDelivered
	case delivered == 0:
		return DispatchFailed
	default:
		return DispatchPartial
	}
}

// InAppNotification 站内通知，由站内渠道写入
type InAppNotification struct {
	ID        string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string            `json:"userId" gorm:"type:varchar(36);not null;index"`
	Type      string            `json:"type" gorm:"type:varchar(64)"`
	Title     string            `json:"title" gorm:"type:varchar(255)"`
	Message   string            `json:"message" gorm:"type:text;not null"`
	Metadata  map[string]string `json:"metadata,omitempty" gorm:"serializer:json;type:text"`
	IsRead    bool              `json:"isRead" gorm:"default:false;index"`
	CreatedAt time.Time         `json:"createdAt" gorm:"index"`
}

// TableName 指定表名
func (InAppNotification) TableName() string {
	return "in_app_notifications"
}

// CursorKey 实现游标分页的排序键
func (n InAppNotification) CursorKey() Cursor {
	return Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
}
