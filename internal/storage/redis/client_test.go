package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"freightflow/backend/internal/cache"
	"freightflow/backend/internal/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := New(&config.RedisConfig{Address: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestClient_Store(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	t.Run("连接可用", func(t *testing.T) {
		assert.NoError(t, client.Ping(ctx))
		assert.NotNil(t, client.PoolStats())
	})

	t.Run("写入并读取", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "dashboard:t1:shipper-1", []byte(`{"activeShipments":3}`), time.Minute))
		got, err := client.Get(ctx, "dashboard:t1:shipper-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"activeShipments":3}`, string(got))
		assert.Equal(t, time.Minute, mr.TTL("dashboard:t1:shipper-1"))
	})

	t.Run("过期后未命中", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "short", []byte("x"), time.Second))
		mr.FastForward(2 * time.Second)
		_, err := client.Get(ctx, "short")
		assert.ErrorIs(t, err, cache.ErrMiss)
	})

	t.Run("删除", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "gone", []byte("x"), 0))
		require.NoError(t, client.Delete(ctx, "gone"))
		_, err := client.Get(ctx, "gone")
		assert.ErrorIs(t, err, cache.ErrMiss)
		assert.False(t, mr.Exists("gone"))
	})

	t.Run("服务端错误原样返回", func(t *testing.T) {
		mr.SetError("ERR injected failure")
		defer mr.SetError("")
		_, err := client.Get(ctx, "any")
		require.Error(t, err)
		assert.NotErrorIs(t, err, cache.ErrMiss)
	})
}

func TestNew_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(&config.RedisConfig{Address: addr}, nil)
	assert.ErrorContains(t, err, "failed to connect to Redis")
}

func TestClient_PubSub(t *testing.T) {
	client, mr := newTestClient(t)
	core, logs := observer.New(zap.WarnLevel)
	client.log = zap.New(core)

	var (
		mu       sync.Mutex
		received []string
	)
	handle := func(_ context.Context, payload []byte) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, string(payload))
		if string(payload) == "bad" {
			return assert.AnError
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Subscribe(ctx, "freightflow:events", handle) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("freightflow:events")["freightflow:events"] == 1
	}, time.Second, 5*time.Millisecond)

	pubCtx := context.Background()
	require.NoError(t, client.Publish(pubCtx, "freightflow:events", []byte(`{"type":"shipment.delivered"}`)))
	require.NoError(t, client.Publish(pubCtx, "freightflow:events", []byte("bad")))
	require.NoError(t, client.Publish(pubCtx, "freightflow:events", []byte(`{"type":"payment.received"}`)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, `{"type":"payment.received"}`, received[2], "处理失败不中断订阅")
	assert.Equal(t, 1, logs.FilterMessage("failed to handle event").Len())
}

func TestClient_SubscribeFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	client := NewWithClient(rdb, nil)
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := client.Subscribe(ctx, "freightflow:events", func(context.Context, []byte) error { return nil })
	assert.ErrorContains(t, err, "subscribe freightflow:events")
}
