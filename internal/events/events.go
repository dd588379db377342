// Package events 把外部系统发布的运单领域事件转换为动态记录与通知。
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"freightflow/backend/internal/domain"
	"freightflow/backend/internal/monitoring"
	"freightflow/backend/internal/notify"
	"freightflow/backend/internal/storage"
)

// 事件类型
const (
	TypeShipmentCreated  = "shipment.created"
	TypeStatusUpdated    = "shipment.status_updated"
	TypeCarrierAssigned  = "shipment.carrier_assigned"
	TypeDelivered        = "shipment.delivered"
	TypeDelayed          = "shipment.delayed"
	TypeIssueReported    = "shipment.issue_reported"
	TypePaymentReceived  = "payment.received"
	TypeCarrierCheckedIn = "carrier.checked_in"
)

var activityTypes = map[string]domain.ActivityType{
	TypeShipmentCreated:  domain.ActivityShipmentCreated,
	TypeStatusUpdated:    domain.ActivityStatusUpdated,
	TypeCarrierAssigned:  domain.ActivityCarrierAssigned,
	TypeDelivered:        domain.ActivityStatusUpdated,
	TypeDelayed:          domain.ActivityStatusUpdated,
	TypeIssueReported:    domain.ActivityIssueReported,
	TypePaymentReceived:  domain.ActivityPaymentReceived,
	TypeCarrierCheckedIn: domain.ActivityCarrierCheckedIn,
}

// Recipient 事件通知的接收人
type Recipient struct {
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
}

// ShipmentEvent 运单领域事件
type ShipmentEvent struct {
	ID             string    `json:"id,omitempty"`
	Type           string    `json:"type"`
	TenantID       string    `json:"tenantId"`
	ShipmentID     string    `json:"shipmentId,omitempty"`
	TrackingNumber string    `json:"trackingNumber,omitempty"`
	ShipperID      string    `json:"shipperId,omitempty"`
	CarrierID      string    `json:"carrierId,omitempty"`
	CarrierName    string    `json:"carrierName,omitempty"`
	Origin         string    `json:"origin,omitempty"`
	Destination    string    `json:"destination,omitempty"`
	Status         string    `json:"status,omitempty"`
	Note           string    `json:"note,omitempty"`
	Amount         float64   `json:"amount,omitempty"`
	ActorName      string    `json:"actorName,omitempty"`
	ActorAvatarURL string    `json:"actorAvatarUrl,omitempty"`
	Recipient      Recipient `json:"recipient"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Validate 校验事件的必填字段
func (e ShipmentEvent) Validate() error {
	var v domain.Violations
	if _, ok := activityTypes[e.Type]; !ok {
		v.Add("type", "must be a known event type")
	}
	if strings.TrimSpace(e.TenantID) == "" {
		v.Add("tenantId", "is required")
	}
	if e.Recipient.Email != "" && !domain.ValidEmailAddress(e.Recipient.Email) {
		v.Add("recipient.email", "must be a valid email address")
	}
	return v.Err()
}

// Decode 解析 JSON 事件
func Decode(raw []byte) (ShipmentEvent, error) {
	var ev ShipmentEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ShipmentEvent{}, domain.NewValidationError("body", "must be a JSON shipment event")
	}
	return ev, ev.Validate()
}

// Encode 序列化事件，供发布方与开发工具使用
func Encode(ev ShipmentEvent) ([]byte, error) {
	return json.Marshal(ev)
}

// Enqueuer 异步通知分发
type Enqueuer interface {
	Enqueue(payload domain.NotificationPayload) error
}

// Subscriber 消息订阅源
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handle func(context.Context, []byte) error) error
}

// PreferenceFilter 按用户偏好过滤通知渠道
type PreferenceFilter interface {
	EnabledChannels(ctx context.Context, userID, notificationType string, channels []domain.Channel) ([]domain.Channel, error)
}

var errSubscriptionClosed = errors.New("subscription closed")

// Bridge 事件桥接器
type Bridge struct {
	activities  storage.ActivityRepository
	renderer    *notify.Renderer
	dispatcher  Enqueuer
	preferences PreferenceFilter
	metrics     *monitoring.Metrics
	log         *zap.Logger
	now         func() time.Time

	retryDelay    time.Duration
	maxRetryDelay time.Duration
}

// BridgeOption 桥接器选项
type BridgeOption func(*Bridge)

// WithPreferences 投递前按用户偏好去掉被关闭的渠道
func WithPreferences(p PreferenceFilter) BridgeOption {
	return func(b *Bridge) { b.preferences = p }
}

// WithResubscribeBackoff 设置订阅失败后的退避区间
func WithResubscribeBackoff(initial, maxDelay time.Duration) BridgeOption {
	return func(b *Bridge) {
		b.retryDelay = initial
		b.maxRetryDelay = maxDelay
	}
}

// NewBridge 创建事件桥接器，dispatcher 为 nil 时只记录动态
func NewBridge(activities storage.ActivityRepository, renderer *notify.Renderer, dispatcher Enqueuer, metrics *monitoring.Metrics, log *zap.Logger, opts ...BridgeOption) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bridge{
		activities:    activities,
		renderer:      renderer,
		dispatcher:    dispatcher,
		metrics:       metrics,
		log:           log,
		now:           time.Now,
		retryDelay:    time.Second,
		maxRetryDelay: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run 订阅频道直到 ctx 结束。订阅失败或连接断开时按指数退避重新订阅，
// 只记录日志不返回错误，HTTP 服务不受消息代理故障影响
func (b *Bridge) Run(ctx context.Context, sub Subscriber, channel string) error {
	b.log.Info("event bridge started", zap.String("channel", channel))

	err := retry.New(
		retry.Context(ctx),
		retry.UntilSucceeded(),
		retry.Delay(b.retryDelay),
		retry.MaxDelay(b.maxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			b.log.Warn("event subscription lost, resubscribing",
				zap.String("channel", channel),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	).Do(func() error {
		err := sub.Subscribe(ctx, channel, b.Handle)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errSubscriptionClosed
		}
		return err
	})
	if err != nil && ctx.Err() == nil {
		b.log.Error("event bridge stopped", zap.String("channel", channel), zap.Error(err))
		return nil
	}
	b.log.Info("event bridge stopped", zap.String("channel", channel))
	return nil
}

// Handle 处理一条原始事件消息
func (b *Bridge) Handle(ctx context.Context, raw []byte) error {
	ev, err := Decode(raw)
	if err != nil {
		b.metrics.RecordEvent(eventLabel(ev.Type), "invalid")
		return err
	}

	if err := b.Process(ctx, ev); err != nil {
		b.metrics.RecordEvent(ev.Type, "failed")
		return err
	}
	b.metrics.RecordEvent(ev.Type, "processed")
	return nil
}

// Process 持久化动态并投递通知
func (b *Bridge) Process(ctx context.Context, ev ShipmentEvent) error {
	occurredAt := ev.OccurredAt.UTC()
	if ev.OccurredAt.IsZero() {
		occurredAt = b.now().UTC()
	}

	var rendered *notify.Rendered
	if b.renderer != nil && b.renderer.Supports(ev.Type) {
		r, err := b.renderer.Render(ev.Type, ev)
		if err != nil {
			return err
		}
		rendered = &r
	}

	activity := &domain.Activity{
		ID:             uuid.NewString(),
		Type:           activityTypes[ev.Type],
		Title:          activityTitle(ev, rendered),
		Description:    activityDescription(ev, rendered),
		ActorName:      ev.ActorName,
		ActorAvatarURL: ev.ActorAvatarURL,
		IsUnread:       true,
		Parties: domain.Parties{
			TenantID:  ev.TenantID,
			ShipperID: ev.ShipperID,
			CarrierID: ev.CarrierID,
		},
		CreatedAt: occurredAt,
	}
	if ev.ShipmentID != "" {
		activity.EntityType = "shipment"
		activity.EntityID = ev.ShipmentID
	}
	if err := b.activities.SaveActivity(ctx, activity); err != nil {
		return fmt.Errorf("save activity: %w", err)
	}

	payload, ok := notificationFor(ev, rendered)
	if !ok || b.dispatcher == nil {
		return nil
	}
	if b.preferences != nil {
		channels, err := b.preferences.EnabledChannels(ctx, payload.UserID, payload.Type, payload.Channels)
		if err != nil {
			// 偏好读取失败时按默认开启处理
			b.log.Warn("notification preferences unavailable",
				zap.String("user_id", payload.UserID),
				zap.Error(err),
			)
		} else {
			payload.Channels = channels
		}
		if len(payload.Channels) == 0 {
			b.log.Debug("notification suppressed by preferences",
				zap.String("event_type", ev.Type),
				zap.String("user_id", payload.UserID),
			)
			return nil
		}
	}
	if err := b.dispatcher.Enqueue(payload); err != nil {
		b.log.Warn("event notification not enqueued",
			zap.String("event_type", ev.Type),
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// notificationFor 根据接收人可用的渠道组装通知
func notificationFor(ev ShipmentEvent, rendered *notify.Rendered) (domain.NotificationPayload, bool) {
	if rendered == nil {
		return domain.NotificationPayload{}, false
	}

	channels := make([]domain.Channel, 0, 2)
	if ev.Recipient.Email != "" {
		channels = append(channels, domain.ChannelEmail)
	}
	if ev.Recipient.UserID != "" {
		channels = append(channels, domain.ChannelInApp)
	}
	if len(channels) == 0 {
		return domain.NotificationPayload{}, false
	}

	payload := domain.NotificationPayload{
		Type:         ev.Type,
		UserID:       ev.Recipient.UserID,
		UserEmail:    ev.Recipient.Email,
		Subject:      rendered.Subject,
		EmailBody:    rendered.EmailBody,
		InAppMessage: rendered.InAppMessage,
		Channels:     channels,
		Metadata:     map[string]string{"tenantId": ev.TenantID},
	}
	if ev.ID != "" {
		payload.Metadata["eventId"] = ev.ID
	}
	if ev.ShipmentID != "" {
		payload.Metadata["shipmentId"] = ev.ShipmentID
	}
	return payload, true
}

var typeWords = strings.NewReplacer(".", " ", "_", " ")

func activityTitle(ev ShipmentEvent, rendered *notify.Rendered) string {
	if rendered != nil && rendered.Subject != "" {
		return rendered.Subject
	}
	title := typeWords.Replace(ev.Type)
	if ev.TrackingNumber != "" {
		return fmt.Sprintf("%s: %s", title, ev.TrackingNumber)
	}
	return title
}

func activityDescription(ev ShipmentEvent, rendered *notify.Rendered) string {
	if rendered != nil {
		return rendered.InAppMessage
	}
	return ev.Note
}

// eventLabel 未知类型统一归类，避免指标标签基数失控
func eventLabel(eventType string) string {
	if _, ok := activityTypes[eventType]; ok {
		return eventType
	}
	return "unknown"
}
