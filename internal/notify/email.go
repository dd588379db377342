package notify

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"go.uber.org/zap"

	"freightflow/backend/internal/domain"
	"freightflow/backend/internal/smtp"
)

// Mailer 发送已编码的邮件
type Mailer interface {
	Send(ctx context.Context, from string, to []string, raw []byte) error
}

// EmailChannel 邮件渠道
type EmailChannel struct {
	mailer   Mailer
	from     string // From 头，可带显示名
	envelope string // MAIL FROM 使用的裸地址
	now      func() time.Time
	log      *zap.Logger
}

// NewEmailChannel 创建邮件渠道，from 可以是 "FreightFlow <no-reply@example.com>" 形式
func NewEmailChannel(mailer Mailer, from string, log *zap.Logger) *EmailChannel {
	if log == nil {
		log = zap.NewNop()
	}
	envelope := from
	if parsed, err := mail.ParseAddress(from); err == nil {
		envelope = parsed.Address
	}
	return &EmailChannel{mailer: mailer, from: from, envelope: envelope, now: time.Now, log: log}
}

// Name 实现 Channel
func (c *EmailChannel) Name() domain.Channel {
	return domain.ChannelEmail
}

// Send 组装并通过 SMTP 中继发送邮件
func (c *EmailChannel) Send(ctx context.Context, payload domain.NotificationPayload) error {
	if !domain.ValidEmailAddress(payload.UserEmail) {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, payload.UserEmail)
	}

	headers := map[string]string{}
	if payload.Type != "" {
		headers["X-FreightFlow-Type"] = payload.Type
	}

	raw, messageID, err := smtp.Compose(smtp.Message{
		From:    c.from,
		To:      payload.UserEmail,
		Subject: payload.Subject,
		Body:    payload.EmailBody,
		Headers: headers,
		Date:    c.now(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}

	if err := c.mailer.Send(ctx, c.envelope, []string{payload.UserEmail}, raw); err != nil {
		if smtp.IsRecipientRejected(err) {
			return fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
		}
		if ctx.Err() != nil {
			return domain.Upstream("smtp", ctx.Err())
		}
		return domain.Upstream("smtp", err)
	}

	c.log.Debug("email delivered",
		zap.String("message_id", messageID),
		zap.String("type", payload.Type),
	)
	return nil
}
