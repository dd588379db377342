package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"freightflow/backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func seedShipments(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveShipment(ctx, &domain.Shipment{
			ID:        fmt.Sprintf("s%d", i),
			Parties:   domain.Parties{TenantID: "t1", ShipperID: "shipper-1", CarrierID: "carrier-1"},
			Status:    domain.ShipmentInTransit,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	// 另一个货主与另一个租户
	require.NoError(t, store.SaveShipment(ctx, &domain.Shipment{
		ID:        "other-shipper",
		Parties:   domain.Parties{TenantID: "t1", ShipperID: "shipper-2"},
		Status:    domain.ShipmentPending,
		CreatedAt: base,
	}))
	require.NoError(t, store.SaveShipment(ctx, &domain.Shipment{
		ID:        "other-tenant",
		Parties:   domain.Parties{TenantID: "t2", ShipperID: "shipper-1", CarrierID: "carrier-1"},
		Status:    domain.ShipmentInTransit,
		CreatedAt: base,
	}))
}

func TestMemoryStore_ShipmentScoping(t *testing.T) {
	store := NewStore()
	seedShipments(t, store)
	ctx := context.Background()

	t.Run("货主只看到自己的运单", func(t *testing.T) {
		rows, total, err := store.ListShipments(ctx, domain.Scope{Role: domain.RoleShipper, UserID: "shipper-1", TenantID: "t1"}, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Equal(t, "s4", rows[0].ID, "最新的在前")
		for _, r := range rows {
			assert.Equal(t, "t1", r.TenantID)
			assert.Equal(t, "shipper-1", r.ShipperID)
		}
	})

	t.Run("调度员看到整个租户但不跨租户", func(t *testing.T) {
		_, total, err := store.ListShipments(ctx, domain.Scope{Role: domain.RoleDispatcher, UserID: "d", TenantID: "t1"}, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(6), total)
	})

	t.Run("偏移超出总数返回空切片", func(t *testing.T) {
		rows, total, err := store.ListShipments(ctx, domain.Scope{Role: domain.RoleShipper, UserID: "shipper-1", TenantID: "t1"}, 10, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.NotNil(t, rows)
		assert.Empty(t, rows)
	})

	t.Run("获取范围外的运单返回未找到", func(t *testing.T) {
		_, err := store.GetShipment(ctx, domain.Scope{Role: domain.RoleShipper, UserID: "shipper-1", TenantID: "t1"}, "other-tenant")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = store.GetShipment(ctx, domain.Scope{Role: domain.RoleShipper, UserID: "shipper-1", TenantID: "t1"}, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		got, err := store.GetShipment(ctx, domain.Scope{Role: domain.RoleCarrier, UserID: "carrier-1", TenantID: "t1"}, "s2")
		require.NoError(t, err)
		assert.Equal(t, "s2", got.ID)
	})

	t.Run("游标之后的记录", func(t *testing.T) {
		scope := domain.Scope{Role: domain.RoleShipper, UserID: "shipper-1", TenantID: "t1"}
		after := domain.Cursor{CreatedAt: base.Add(3 * time.Hour), ID: "s3"}
		rows, err := store.ListShipmentsAfter(ctx, scope, &after, 10)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, []string{"s2", "s1", "s0"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
	})
}

func TestMemoryStore_Analytics(t *testing.T) {
	store := NewStore()
	seedShipments(t, store)
	ctx := context.Background()

	counts, err := store.CountShipmentsByStatus(ctx, domain.Scope{Role: domain.RoleDispatcher, TenantID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, []domain.StatusCount{
		{Status: domain.ShipmentInTransit, Count: 5},
		{Status: domain.ShipmentPending, Count: 1},
	}, counts)

	open, err := store.CountOpenJobs(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), open)

	carriers, err := store.CountDistinctCarriers(ctx, "t1", domain.ActiveStatuses())
	require.NoError(t, err)
	assert.Equal(t, int64(1), carriers)

	since, err := store.ListShipmentsSince(ctx, domain.Scope{Role: domain.RoleShipper, UserID: "shipper-1", TenantID: "t1"}, base.Add(2*time.Hour), 2)
	require.NoError(t, err)
	assert.Len(t, since, 2, "受 limit 约束")
	assert.Equal(t, "s4", since[0].ID)
}

func TestMemoryStore_Activities(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	parties := domain.Parties{TenantID: "t1", ShipperID: "shipper-1"}

	// 相同时间戳依靠 ID 保证全序
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.SaveActivity(ctx, &domain.Activity{
			ID: id, Type: domain.ActivityIssueReported, Title: id, Parties: parties, CreatedAt: base,
		}))
	}

	scope := domain.Scope{Role: domain.RoleShipper, UserID: "shipper-1", TenantID: "t1"}
	rows, err := store.ListActivitiesAfter(ctx, scope, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, "c", rows[0].ID)
	assert.Equal(t, "b", rows[1].ID)

	rows, err = store.ListActivitiesAfter(ctx, scope, &domain.Cursor{CreatedAt: base, ID: "b"}, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].ID)

	n, err := store.CountActivities(ctx, scope, domain.ActivityIssueReported, base)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestMemoryStore_Notifications(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.CreateNotification(ctx, &domain.InAppNotification{ID: "n1", UserID: "u1", Message: "hi", CreatedAt: base}))
	require.NoError(t, store.CreateNotification(ctx, &domain.InAppNotification{ID: "n2", UserID: "u1", Message: "hi", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, store.CreateNotification(ctx, &domain.InAppNotification{ID: "n3", UserID: "u2", Message: "hi", CreatedAt: base}))

	t.Run("只能标记自己的通知", func(t *testing.T) {
		assert.ErrorIs(t, store.MarkNotificationRead(ctx, "u2", "n1"), domain.ErrNotFound)
		assert.NoError(t, store.MarkNotificationRead(ctx, "u1", "n1"))
	})

	t.Run("全部已读", func(t *testing.T) {
		unread, err := store.CountUnreadNotifications(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), unread)

		n, err := store.MarkAllNotificationsRead(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("按时间倒序列出", func(t *testing.T) {
		rows, err := store.ListNotifications(ctx, "u1", nil, 10)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "n2", rows[0].ID)
	})
}

func TestMemoryStore_PingAfterClose(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Ping(context.Background()), domain.ErrUpstreamUnavailable)
}

func TestMemoryStore_Preferences(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.SavePreferences(ctx, []domain.NotificationPreference{
		{UserID: "u1", Type: "shipment.delivered", Channel: domain.ChannelInApp, Enabled: true},
		{UserID: "u1", Type: "shipment.delayed", Channel: domain.ChannelEmail, Enabled: true},
		{UserID: "u2", Type: "shipment.delayed", Channel: domain.ChannelEmail, Enabled: false},
	}))

	t.Run("同一组合覆盖", func(t *testing.T) {
		require.NoError(t, store.SavePreferences(ctx, []domain.NotificationPreference{
			{UserID: "u1", Type: "shipment.delayed", Channel: domain.ChannelEmail, Enabled: false},
		}))
		rows, err := store.ListPreferences(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "shipment.delayed", rows[0].Type)
		assert.False(t, rows[0].Enabled)
		assert.False(t, rows[0].UpdatedAt.IsZero())
		assert.Equal(t, "shipment.delivered", rows[1].Type)
	})

	t.Run("没有偏好返回空列表", func(t *testing.T) {
		rows, err := store.ListPreferences(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, rows)
		assert.Empty(t, rows)
	})
}
