package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightflow/backend/internal/domain"
	"freightflow/backend/internal/storage/memory"
)

var (
	base         = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	shipperScope = domain.Scope{Role: domain.RoleShipper, UserID: "shipper-1", TenantID: "t1"}
)

func seedFeed(t *testing.T, n int) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		// 每两条共用一个时间戳，验证 id 作为次级排序键
		created := base.Add(time.Duration(i/2) * time.Minute)
		parties := domain.Parties{TenantID: "t1", ShipperID: "shipper-1"}
		require.NoError(t, store.SaveShipment(ctx, &domain.Shipment{
			ID:             fmt.Sprintf("s%02d", i),
			TrackingNumber: fmt.Sprintf("FF-%02d", i),
			Parties:        parties,
			Status:         domain.ShipmentPending,
			CreatedAt:      created,
		}))
		require.NoError(t, store.SaveActivity(ctx, &domain.Activity{
			ID:        fmt.Sprintf("a%02d", i),
			Type:      domain.ActivityShipmentCreated,
			Title:     "created",
			Parties:   parties,
			CreatedAt: created,
		}))
	}
	// 其他租户的数据不可见
	require.NoError(t, store.SaveActivity(ctx, &domain.Activity{
		ID: "foreign", Title: "x", Parties: domain.Parties{TenantID: "t2", ShipperID: "shipper-1"}, CreatedAt: base,
	}))
	return store
}

func TestFeedService_Activity(t *testing.T) {
	store := seedFeed(t, 7)
	svc := NewFeedService(store, store, nil)
	ctx := context.Background()

	t.Run("遍历游标得到全部记录且不重复", func(t *testing.T) {
		var seen []string
		cursor := ""
		for pages := 0; pages < 10; pages++ {
			page, err := svc.Activity(ctx, shipperScope, domain.CursorQuery{Cursor: cursor, Limit: 3})
			require.NoError(t, err)
			assert.LessOrEqual(t, len(page.Items), 3)
			for _, item := range page.Items {
				seen = append(seen, item.ID)
			}
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
		assert.Equal(t, []string{"a06", "a05", "a04", "a03", "a02", "a01", "a00"}, seen)
	})

	t.Run("相同游标返回相同页", func(t *testing.T) {
		first, err := svc.Activity(ctx, shipperScope, domain.CursorQuery{Limit: 2})
		require.NoError(t, err)
		a, err := svc.Activity(ctx, shipperScope, domain.CursorQuery{Cursor: first.NextCursor, Limit: 2})
		require.NoError(t, err)
		b, err := svc.Activity(ctx, shipperScope, domain.CursorQuery{Cursor: first.NextCursor, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("恰好取完时没有下一页", func(t *testing.T) {
		page, err := svc.Activity(ctx, shipperScope, domain.CursorQuery{Limit: 7})
		require.NoError(t, err)
		assert.Len(t, page.Items, 7)
		assert.Empty(t, page.NextCursor)
	})

	t.Run("非法参数", func(t *testing.T) {
		_, err := svc.Activity(ctx, shipperScope, domain.CursorQuery{Cursor: "%%%"})
		assert.True(t, domain.IsValidation(err))

		_, err = svc.Activity(ctx, shipperScope, domain.CursorQuery{Limit: 101})
		assert.True(t, domain.IsValidation(err))

		_, err = svc.Activity(ctx, domain.Scope{Role: domain.RoleShipper, TenantID: "t1"}, domain.CursorQuery{})
		assert.True(t, domain.IsValidation(err), "缺少用户")
	})
}

func TestFeedService_RecentShipments(t *testing.T) {
	store := seedFeed(t, 5)
	svc := NewFeedService(store, store, nil)
	ctx := context.Background()

	t.Run("偏移分页", func(t *testing.T) {
		page, err := svc.RecentShipments(ctx, shipperScope, domain.OffsetQuery{Page: 2, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), page.Total)
		assert.Equal(t, 3, page.TotalPages)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "s02", page.Items[0].ID)
		assert.Equal(t, "Unassigned", page.Items[0].Carrier)
	})

	t.Run("超出末页返回空列表", func(t *testing.T) {
		page, err := svc.RecentShipments(ctx, shipperScope, domain.OffsetQuery{Page: 9, PageSize: 2})
		require.NoError(t, err)
		assert.NotNil(t, page.Items)
		assert.Empty(t, page.Items)
		assert.Equal(t, 3, page.TotalPages)
	})

	t.Run("默认值与边界", func(t *testing.T) {
		page, err := svc.RecentShipments(ctx, shipperScope, domain.OffsetQuery{})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 10, page.PageSize)

		_, err = svc.RecentShipments(ctx, shipperScope, domain.OffsetQuery{Page: 1, PageSize: 500})
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("游标模式", func(t *testing.T) {
		page, err := svc.RecentShipmentsCursor(ctx, shipperScope, domain.CursorQuery{Limit: 4})
		require.NoError(t, err)
		assert.Len(t, page.Items, 4)
		require.NotEmpty(t, page.NextCursor)

		rest, err := svc.RecentShipmentsCursor(ctx, shipperScope, domain.CursorQuery{Cursor: page.NextCursor, Limit: 4})
		require.NoError(t, err)
		require.Len(t, rest.Items, 1)
		assert.Equal(t, "s00", rest.Items[0].ID)
	})

	t.Run("单个运单", func(t *testing.T) {
		got, err := svc.Shipment(ctx, shipperScope, "s03")
		require.NoError(t, err)
		assert.Equal(t, "FF-03", got.TrackingNumber)

		_, err = svc.Shipment(ctx, domain.Scope{Role: domain.RoleCarrier, UserID: "carrier-9", TenantID: "t1"}, "s03")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
