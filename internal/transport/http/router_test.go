package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"freightflow/backend/internal/auth"
	"freightflow/backend/internal/config"
	"freightflow/backend/internal/domain"
	"freightflow/backend/internal/health"
	"freightflow/backend/internal/monitoring"
	"freightflow/backend/internal/notify"
	"freightflow/backend/internal/service"
	"freightflow/backend/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var created = time.Date(2026, 4, 18, 9, 0, 0, 0, time.UTC)

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	router   *gin.Engine
	store    *memory.Store
	resolver *auth.Resolver
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RateLimit: 0},
		App:    config.AppConfig{Version: "1.2.3", Environment: "test"},
		Auth: config.AuthConfig{
			Required:  false,
			JWTSecret: "test-secret-at-least-32-characters!!",
			Issuer:    "freightflow",
			TokenTTL:  time.Hour,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

func newTestServer(t *testing.T, indicators ...health.Indicator) *testServer {
	t.Helper()
	cfg := testConfig()
	store := memory.NewStore()
	ctx := context.Background()

	for i, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, store.SaveShipment(ctx, &domain.Shipment{
			ID:             id,
			TrackingNumber: "FF-" + id,
			Parties:        domain.Parties{TenantID: "t1", ShipperID: "shipper-1", CarrierID: "carrier-1"},
			CarrierName:    "Acme",
			Origin:         "Rotterdam",
			Destination:    "Berlin",
			Status:         domain.ShipmentInTransit,
			Price:          100,
			CreatedAt:      created.Add(time.Duration(i) * time.Hour),
		}))
		require.NoError(t, store.SaveActivity(ctx, &domain.Activity{
			ID:        "a-" + id,
			Type:      domain.ActivityShipmentCreated,
			Title:     "Shipment created",
			Parties:   domain.Parties{TenantID: "t1", ShipperID: "shipper-1"},
			CreatedAt: created.Add(time.Duration(i) * time.Hour),
		}))
	}

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	log := zap.NewNop()
	dispatcher := service.NewNotificationDispatcher(config.NotificationConfig{ChannelTimeout: time.Second}, log,
		[]notify.Channel{notify.NewInAppChannel(store, nil, log)}, service.WithMetrics(metrics))

	if len(indicators) == 0 {
		indicators = []health.Indicator{health.DatabaseIndicator(store)}
	}
	agg := health.NewAggregator(time.Second, log, indicators...)
	resolver := auth.NewResolver(cfg.Auth)

	router := NewRouter(RouterDependencies{
		Config:        cfg,
		Analytics:     service.NewAnalyticsService(store, cfg.Dashboard, nil, metrics, log),
		Feed:          service.NewFeedService(store, store, metrics),
		Dispatcher:    dispatcher,
		Notifications: service.NewNotificationService(store),
		Preferences:   service.NewPreferenceService(store),
		Resolver:      resolver,
		Aggregator:    agg,
		Collector:     health.NewCollector(created, cfg.App.Version, cfg.App.Environment, log),
		Metrics:       metrics,
		Logger:        log,
	})
	return &testServer{router: router, store: store, resolver: resolver}
}

func (s *testServer) do(t *testing.T, method, target, role string, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if role != "" {
		req.Header.Set(auth.HeaderTenantID, "t1")
		switch role {
		case "SHIPPER":
			req.Header.Set(auth.HeaderUserID, "shipper-1")
		case "CARRIER":
			req.Header.Set(auth.HeaderUserID, "carrier-1")
		default:
			req.Header.Set(auth.HeaderUserID, "dispatcher-1")
		}
		req.Header.Set(auth.HeaderUserRole, role)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestRouter_Dashboard(t *testing.T) {
	s := newTestServer(t)

	t.Run("货主看板", func(t *testing.T) {
		w, env := s.do(t, http.MethodGet, "/v1/dashboard/analytics", "SHIPPER", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, CodeSuccess, env.Code)

		var analytics map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &analytics))
		assert.Equal(t, "SHIPPER", analytics["role"])
		kpis := analytics["metrics"].(map[string]any)
		assert.Equal(t, 3.0, kpis["activeShipments"])
	})

	t.Run("请求与身份不一致的角色返回 403", func(t *testing.T) {
		w, env := s.do(t, http.MethodGet, "/v1/dashboard/analytics?role=dispatcher", "SHIPPER", "")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, CodeForbidden, env.Code)
	})

	t.Run("未知角色返回 400", func(t *testing.T) {
		w, env := s.do(t, http.MethodGet, "/v1/dashboard/analytics?role=admin", "SHIPPER", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, string(env.Data), "violations")
	})

	t.Run("缺少身份返回 401", func(t *testing.T) {
		w, _ := s.do(t, http.MethodGet, "/v1/dashboard/analytics", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRouter_Feeds(t *testing.T) {
	s := newTestServer(t)

	t.Run("动态流游标分页", func(t *testing.T) {
		w, env := s.do(t, http.MethodGet, "/v1/activity?limit=2", "SHIPPER", "")
		require.Equal(t, http.StatusOK, w.Code)
		var page domain.CursorPage[domain.ActivityItem]
		require.NoError(t, json.Unmarshal(env.Data, &page))
		require.Len(t, page.Items, 2)
		assert.Equal(t, "a-s3", page.Items[0].ID)
		require.NotEmpty(t, page.NextCursor)

		w, env = s.do(t, http.MethodGet, "/v1/activity?limit=2&cursor="+page.NextCursor, "SHIPPER", "")
		require.Equal(t, http.StatusOK, w.Code)
		var next domain.CursorPage[domain.ActivityItem]
		require.NoError(t, json.Unmarshal(env.Data, &next))
		require.Len(t, next.Items, 1)
		assert.Equal(t, "a-s1", next.Items[0].ID)
		assert.Empty(t, next.NextCursor)
	})

	t.Run("非法游标与越界 limit", func(t *testing.T) {
		w, env := s.do(t, http.MethodGet, "/v1/activity?cursor=bm90LWEtY3Vyc29y&limit=500", "SHIPPER", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		var data struct {
			Violations []domain.Violation `json:"violations"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Len(t, data.Violations, 2)
	})

	t.Run("非整数参数返回 400", func(t *testing.T) {
		w, _ := s.do(t, http.MethodGet, "/v1/shipments/recent?page=abc", "SHIPPER", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("最近运单偏移分页", func(t *testing.T) {
		w, env := s.do(t, http.MethodGet, "/v1/shipments/recent?page=2&pageSize=2", "CARRIER", "")
		require.Equal(t, http.StatusOK, w.Code)
		var page domain.Page[domain.RecentShipment]
		require.NoError(t, json.Unmarshal(env.Data, &page))
		assert.Equal(t, int64(3), page.Total)
		assert.Equal(t, 2, page.TotalPages)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "s1", page.Items[0].ID)
	})

	t.Run("最近运单游标模式", func(t *testing.T) {
		w, env := s.do(t, http.MethodGet, "/v1/shipments/recent?limit=1", "SHIPPER", "")
		require.Equal(t, http.StatusOK, w.Code)
		var page domain.CursorPage[domain.RecentShipment]
		require.NoError(t, json.Unmarshal(env.Data, &page))
		require.Len(t, page.Items, 1)
		assert.Equal(t, "s3", page.Items[0].ID)
		assert.NotEmpty(t, page.NextCursor)
	})

	t.Run("运单详情", func(t *testing.T) {
		w, env := s.do(t, http.MethodGet, "/v1/shipments/s2", "SHIPPER", "")
		require.Equal(t, http.StatusOK, w.Code)
		var shipment domain.RecentShipment
		require.NoError(t, json.Unmarshal(env.Data, &shipment))
		assert.Equal(t, "FF-s2", shipment.TrackingNumber)

		w, env = s.do(t, http.MethodGet, "/v1/shipments/missing", "SHIPPER", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, MsgNotFound, env.Msg)
	})
}

func TestRouter_Notifications(t *testing.T) {
	s := newTestServer(t)

	t.Run("只有调度员可以分发", func(t *testing.T) {
		w, _ := s.do(t, http.MethodPost, "/v1/notifications/dispatch", "SHIPPER",
			`{"userId":"shipper-1","inAppMessage":"hi","channels":["in_app"]}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("部分成功仍返回 200 与逐渠道结果", func(t *testing.T) {
		w, env := s.do(t, http.MethodPost, "/v1/notifications/dispatch", "DISPATCHER",
			`{"userId":"shipper-1","userEmail":"ops@shipper.io","subject":"Delayed","emailBody":"FF-s1 is delayed","inAppMessage":"FF-s1 delayed","channels":["email","in_app"]}`)
		require.Equal(t, http.StatusOK, w.Code)
		var result domain.DispatchResult
		require.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, domain.DispatchPartial, result.Status)
		require.Len(t, result.Outcomes, 2)
		assert.Equal(t, domain.ChannelEmail, result.Outcomes[0].Channel)
		assert.Equal(t, domain.OutcomeFailed, result.Outcomes[0].Outcome)
		assert.Equal(t, "channel not configured", result.Outcomes[0].Reason)
		assert.Equal(t, domain.OutcomeDelivered, result.Outcomes[1].Outcome)
	})

	t.Run("空渠道在副作用前被拒绝", func(t *testing.T) {
		w, env := s.do(t, http.MethodPost, "/v1/notifications/dispatch", "DISPATCHER", `{"userId":"shipper-1","channels":[]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, string(env.Data), "channels")
	})

	t.Run("非法 JSON", func(t *testing.T) {
		w, _ := s.do(t, http.MethodPost, "/v1/notifications/dispatch", "DISPATCHER", `{`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("列出并标记已读", func(t *testing.T) {
		w, env := s.do(t, http.MethodGet, "/v1/notifications", "SHIPPER", "")
		require.Equal(t, http.StatusOK, w.Code)
		var list struct {
			Items  []domain.InAppNotification `json:"items"`
			Unread int64                      `json:"unreadCount"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &list))
		require.Len(t, list.Items, 1)
		assert.Equal(t, int64(1), list.Unread)
		assert.Equal(t, "FF-s1 delayed", list.Items[0].Message)

		w, _ = s.do(t, http.MethodPost, "/v1/notifications/"+list.Items[0].ID+"/read", "SHIPPER", "")
		assert.Equal(t, http.StatusOK, w.Code)

		w, _ = s.do(t, http.MethodPost, "/v1/notifications/"+list.Items[0].ID+"/read", "CARRIER", "")
		assert.Equal(t, http.StatusNotFound, w.Code, "不能标记他人的通知")

		w, env = s.do(t, http.MethodPost, "/v1/notifications/read-all", "SHIPPER", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"updated":0}`, string(env.Data))
	})

	t.Run("接受 in-app 拼写并以标准名返回", func(t *testing.T) {
		w, env := s.do(t, http.MethodPost, "/v1/notifications/dispatch", "DISPATCHER",
			`{"userId":"carrier-1","inAppMessage":"FF-s2 assigned","channels":["in-app"]}`)
		require.Equal(t, http.StatusOK, w.Code)
		var result domain.DispatchResult
		require.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, domain.DispatchDelivered, result.Status)
		require.Len(t, result.Outcomes, 1)
		assert.Equal(t, domain.ChannelInApp, result.Outcomes[0].Channel)
		assert.Contains(t, string(env.Data), `"channel":"in_app"`)
	})
}

func TestRouter_Preferences(t *testing.T) {
	s := newTestServer(t)

	t.Run("默认没有保存的偏好", func(t *testing.T) {
		w, env := s.do(t, http.MethodGet, "/v1/notifications/preferences", "SHIPPER", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, string(env.Data))
	})

	t.Run("关闭邮件并接受 in-app 拼写", func(t *testing.T) {
		w, env := s.do(t, http.MethodPut, "/v1/notifications/preferences", "SHIPPER",
			`{"preferences":[{"type":"shipment.delivered","channel":"email","enabled":false},{"type":"shipment.delivered","channel":"in-app","enabled":true}]}`)
		require.Equal(t, http.StatusOK, w.Code)
		var prefs []domain.NotificationPreference
		require.NoError(t, json.Unmarshal(env.Data, &prefs))
		require.Len(t, prefs, 2)
		assert.Equal(t, domain.ChannelEmail, prefs[0].Channel)
		assert.False(t, prefs[0].Enabled)
		assert.Equal(t, domain.ChannelInApp, prefs[1].Channel)
		assert.Equal(t, "shipper-1", prefs[1].UserID)
	})

	t.Run("偏好按用户隔离", func(t *testing.T) {
		w, env := s.do(t, http.MethodGet, "/v1/notifications/preferences", "CARRIER", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, string(env.Data))
	})

	t.Run("未知渠道", func(t *testing.T) {
		w, env := s.do(t, http.MethodPut, "/v1/notifications/preferences", "SHIPPER",
			`{"preferences":[{"type":"shipment.delivered","channel":"sms","enabled":false}]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, string(env.Data), "preferences[0].channel")
	})

	t.Run("未认证", func(t *testing.T) {
		w, _ := s.do(t, http.MethodGet, "/v1/notifications/preferences", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRouter_Health(t *testing.T) {
	t.Run("全部健康返回 200", func(t *testing.T) {
		s := newTestServer(t)
		w, _ := s.do(t, http.MethodGet, "/health", "", "")
		require.Equal(t, http.StatusOK, w.Code)

		var report health.Report
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		assert.Equal(t, health.StatusOK, report.Status)
		assert.Contains(t, report.Info, "database")
		assert.Empty(t, report.Error)
	})

	t.Run("任一指标失败返回 503 并指明失败项", func(t *testing.T) {
		broken := health.Indicator{Key: "cache", Check: func(context.Context) (map[string]any, error) {
			return nil, errors.New("connection refused")
		}}
		ok := health.Indicator{Key: "uptime", Check: func(context.Context) (map[string]any, error) {
			return map[string]any{"uptime": "1h"}, nil
		}}
		s := newTestServer(t, ok, broken)

		w, _ := s.do(t, http.MethodGet, "/health", "", "")
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		var report health.Report
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		assert.Equal(t, health.StatusError, report.Status)
		assert.Contains(t, report.Error, "cache")
		assert.Len(t, report.Details, 2)

		w, _ = s.do(t, http.MethodGet, "/health/ready", "", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		w, _ = s.do(t, http.MethodGet, "/health/live", "", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("详细健康检查", func(t *testing.T) {
		s := newTestServer(t)
		w, _ := s.do(t, http.MethodGet, "/health/detailed", "", "")
		require.Equal(t, http.StatusOK, w.Code)

		var detailed map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detailed))
		assert.Equal(t, "1.2.3", detailed["version"])
		assert.Equal(t, "test", detailed["environment"])
		metrics := detailed["metrics"].(map[string]any)
		assert.Contains(t, metrics, "system")
		assert.Contains(t, metrics, "application")
	})

	t.Run("Prometheus 指标", func(t *testing.T) {
		s := newTestServer(t)
		s.do(t, http.MethodGet, "/health", "", "")
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "freightflow_http_requests_total")
	})
}

func TestRouter_BearerAndNotFound(t *testing.T) {
	s := newTestServer(t)
	token, _, err := s.resolver.Tokens().Issue("dispatcher-1", "t1", "DISPATCHER")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/activity", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := s.do(t, http.MethodGet, "/v1/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, env.Code)
}
