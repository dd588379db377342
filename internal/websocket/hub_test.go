package websocket

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, hub *Hub) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", HandleWebSocket(hub, func(c *gin.Context) (string, error) {
		user := c.Query("user")
		if user == "" {
			return "", errors.New("missing user")
		}
		return user, nil
	}))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_PushToUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, nil)
	go hub.Run(ctx)
	url := newTestServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?user=u1", nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, MessageTypeConnected, readMessage(t, conn).Type)
	require.Eventually(t, func() bool { return hub.Connections("u1") == 1 }, time.Second, 10*time.Millisecond)

	t.Run("推送给在线用户", func(t *testing.T) {
		require.NoError(t, hub.PushToUser("u1", MessageTypeNotification, map[string]string{"message": "FF-1 delivered"}))
		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeNotification, msg.Type)
		assert.JSONEq(t, `{"message":"FF-1 delivered"}`, string(msg.Data))
	})

	t.Run("离线用户直接忽略", func(t *testing.T) {
		assert.NoError(t, hub.PushToUser("u2", MessageTypeNotification, "x"))
	})

	t.Run("客户端 ping 得到 pong", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))
		assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)
	})

	t.Run("断开后注销", func(t *testing.T) {
		require.NoError(t, conn.Close())
		assert.Eventually(t, func() bool { return hub.Connections("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
	})
}

func TestHub_RejectsUnauthenticated(t *testing.T) {
	hub := NewHub(nil, nil)
	url := newTestServer(t, hub)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}
