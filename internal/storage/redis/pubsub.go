package redis

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Publish 发布消息到频道
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe 订阅频道并把每条消息交给 handle，直到 ctx 结束
//
// handle 返回的错误只记录日志，不会中断订阅。
func (c *Client) Subscribe(ctx context.Context, channel string, handle func(context.Context, []byte) error) error {
	sub := c.rdb.Subscribe(ctx, channel)
	defer sub.Close()

	// 等待订阅确认
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	c.log.Info("subscribed to channel", zap.String("channel", channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := handle(ctx, []byte(msg.Payload)); err != nil {
				c.log.Warn("failed to handle event",
					zap.String("channel", channel),
					zap.Error(err),
				)
			}
		}
	}
}
