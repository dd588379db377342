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

func TestNotificationService(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.CreateNotification(ctx, &domain.InAppNotification{
			ID:        fmt.Sprintf("n%d", i),
			UserID:    "user-1",
			Message:   "hello",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	svc := NewNotificationService(store)

	t.Run("分页并返回未读数", func(t *testing.T) {
		list, err := svc.List(ctx, "user-1", domain.CursorQuery{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), list.UnreadCount)
		require.Len(t, list.Items, 2)
		assert.Equal(t, "n2", list.Items[0].ID)
		assert.NotEmpty(t, list.NextCursor)
	})

	t.Run("标记已读", func(t *testing.T) {
		require.NoError(t, svc.MarkRead(ctx, "user-1", "n0"))
		assert.ErrorIs(t, svc.MarkRead(ctx, "user-2", "n1"), domain.ErrNotFound)
		assert.True(t, domain.IsValidation(svc.MarkRead(ctx, "user-1", "")))

		n, err := svc.MarkAllRead(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		list, err := svc.List(ctx, "user-1", domain.CursorQuery{})
		require.NoError(t, err)
		assert.Zero(t, list.UnreadCount)
	})

	t.Run("缺少用户", func(t *testing.T) {
		_, err := svc.List(ctx, "", domain.CursorQuery{})
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})
}
