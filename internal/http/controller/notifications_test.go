package controller

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"notifyd/internal/api"
	"notifyd/internal/config"
	"notifyd/internal/credential"
	"notifyd/internal/effects"
	"notifyd/internal/http/dto"
	"notifyd/internal/http/resp"
	"notifyd/internal/model"
	"notifyd/internal/queue"
	"notifyd/internal/service/notify"
	"notifyd/internal/sse"
	"notifyd/internal/store/memory"
	"notifyd/internal/ws"
)

type apiMock struct {
	mock.Mock
}

func (m *apiMock) ListNotifications(ctx context.Context, params model.ListParams) (model.Page, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(model.Page), args.Error(1)
}

func (m *apiMock) UnreadCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *apiMock) MarkAsRead(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *apiMock) MarkAllAsRead(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *apiMock) DeleteNotification(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *apiMock) DeleteNotifications(ctx context.Context, ids []int64) error {
	return m.Called(ctx, ids).Error(0)
}

func (m *apiMock) GetSettings(ctx context.Context) (model.Settings, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.Settings), args.Error(1)
}

func (m *apiMock) UpdateSettings(ctx context.Context, settings model.Settings) (model.Settings, error) {
	args := m.Called(ctx, settings)
	return args.Get(0).(model.Settings), args.Error(1)
}

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, payload []byte, routingKey string) error {
	args := m.Called(ctx, payload, routingKey)
	return args.Error(0)
}

type sideEffects struct {
	permission effects.Permission
	warnings   []string
}

func (s *sideEffects) Notify(context.Context, model.Notification, model.Preferences) {}

func (s *sideEffects) DesktopPermission() effects.Permission {
	return s.permission
}

func (s *sideEffects) RequestDesktopPermission(context.Context) (effects.Permission, error) {
	return s.permission, nil
}

func (s *sideEffects) Warn(message string) {
	s.warnings = append(s.warnings, message)
}

type connectionStub struct {
	status  model.ConnectionStatus
	tokens  []string
	dialErr error
	dropped int
}

func (c *connectionStub) Status() model.ConnectionStatus { return c.status }

func (c *connectionStub) Connect(_ context.Context, token string) error {
	c.tokens = append(c.tokens, token)
	if c.dialErr != nil {
		c.status = model.ConnectionStatus{State: model.StateReconnectScheduled, ReconnectAttempts: 1}
		return c.dialErr
	}
	c.status = model.ConnectionStatus{State: model.StateOpen}
	return nil
}

func (c *connectionStub) Disconnect() {
	c.dropped++
	c.status = model.ConnectionStatus{State: model.StateDisconnected}
}

type testEnv struct {
	router  *gin.Engine
	api     *apiMock
	pub     *publisherMock
	effects *sideEffects
	conn    *connectionStub
	svc     *notify.Service
	hub     *sse.Hub
}

func setupRouter(t *testing.T, publisher queue.Publisher) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		RabbitPublishPrefix: "notification",
		PageSize:            20,
		SSEHeartbeat:        time.Hour,
	}
	env := &testEnv{
		api:     &apiMock{},
		effects: &sideEffects{permission: effects.PermissionDenied},
		conn:    &connectionStub{status: model.ConnectionStatus{State: model.StateIdle}},
		hub:     sse.NewHub(),
	}
	if p, ok := publisher.(*publisherMock); ok {
		env.pub = p
	}
	env.svc = notify.NewService(env.api, memory.New(zap.NewNop()), env.effects, env.hub, noGauge{}, zap.NewNop())
	session := credential.NewSession(&config.Config{Token: "tok"}, credential.NewVault(), zap.NewNop())
	toasts := effects.NewToastQueue(time.Hour, env.hub)
	handler := NewHandler(cfg, env.svc, env.hub, env.conn, session, toasts, zap.NewNop(), publisher)

	router := gin.New()
	router.GET("/notifications", handler.ListNotifications)
	router.GET("/notifications/grouped", handler.GroupedNotifications)
	router.POST("/notifications/refresh", handler.RefreshNotifications)
	router.GET("/notifications/unread-count", handler.UnreadCount)
	router.PUT("/notifications/read-all", handler.MarkAllAsRead)
	router.POST("/notifications/batch-delete", handler.BatchDelete)
	router.POST("/notifications/clear-read", handler.ClearRead)
	router.POST("/notifications/publish", handler.PublishNotification)
	router.GET("/notifications/:id", handler.GetNotification)
	router.PUT("/notifications/:id/read", handler.MarkAsRead)
	router.DELETE("/notifications/:id", handler.DeleteNotification)
	router.POST("/preferences/desktop/toggle", handler.ToggleDesktop)
	router.POST("/preferences/audio/toggle", handler.ToggleAudio)
	router.GET("/settings", handler.GetSettings)
	router.POST("/connection/connect", handler.Connect)
	router.POST("/connection/disconnect", handler.Disconnect)
	router.PUT("/token", handler.SetToken)
	router.GET("/events/:room", handler.Events)
	env.router = router
	return env
}

type noGauge struct{}

func (noGauge) SetUnread(int) {}

func performJSONRequest(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRefreshAndListController(t *testing.T) {
	t.Run("refresh replaces the cache", func(t *testing.T) {
		env := setupRouter(t, &publisherMock{})
		env.api.On("ListNotifications", mock.Anything, model.ListParams{Page: 2, PageSize: 20, UnreadOnly: true}).Return(model.Page{
			Items: []model.Notification{{ID: 1, Title: "a"}, {ID: 2, Title: "b", IsRead: true}},
			Total: 22,
		}, nil).Once()

		rec := performJSONRequest(t, env.router, http.MethodPost, "/notifications/refresh?page=2&unreadOnly=true", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[dto.ListResponse](t, rec)
		require.Len(t, body.Items, 2)
		require.Equal(t, 22, body.Total)
		require.Equal(t, 1, body.UnreadCount)

		rec = performJSONRequest(t, env.router, http.MethodGet, "/notifications", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, decode[dto.ListResponse](t, rec).Items, 2)

		rec = performJSONRequest(t, env.router, http.MethodGet, "/notifications/grouped", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		env.api.AssertExpectations(t)
	})

	t.Run("invalid type", func(t *testing.T) {
		env := setupRouter(t, &publisherMock{})
		rec := performJSONRequest(t, env.router, http.MethodPost, "/notifications/refresh?type=bogus", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, resp.CodeBadRequest, decode[dto.ErrorResponse](t, rec).Code)
		env.api.AssertNotCalled(t, "ListNotifications", mock.Anything, mock.Anything)
	})

	t.Run("unauthorized upstream", func(t *testing.T) {
		env := setupRouter(t, &publisherMock{})
		env.api.On("ListNotifications", mock.Anything, mock.Anything).Return(model.Page{}, api.ErrUnauthorized).Once()
		rec := performJSONRequest(t, env.router, http.MethodPost, "/notifications/refresh", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, resp.CodeUnauthorized, decode[dto.ErrorResponse](t, rec).Code)
	})

	t.Run("upstream failure", func(t *testing.T) {
		env := setupRouter(t, &publisherMock{})
		env.api.On("ListNotifications", mock.Anything, mock.Anything).Return(model.Page{}, errors.New("timeout")).Once()
		rec := performJSONRequest(t, env.router, http.MethodPost, "/notifications/refresh", nil)
		require.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestMutationControllers(t *testing.T) {
	env := setupRouter(t, &publisherMock{})
	ctx := context.Background()
	env.svc.AddNotification(ctx, model.Notification{ID: 1, Title: "a", RelatedType: "task", RelatedID: "9"})
	env.svc.AddNotification(ctx, model.Notification{ID: 2, Title: "b"})

	rec := performJSONRequest(t, env.router, http.MethodGet, "/notifications/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "/tasks/9", decode[dto.NotificationResponse](t, rec).Route)

	rec = performJSONRequest(t, env.router, http.MethodGet, "/notifications/404", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = performJSONRequest(t, env.router, http.MethodPut, "/notifications/abc/read", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env.api.On("MarkAsRead", mock.Anything, int64(1)).Return(nil).Once()
	rec = performJSONRequest(t, env.router, http.MethodPut, "/notifications/1/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, decode[dto.UnreadCountResponse](t, rec).UnreadCount)

	env.api.On("DeleteNotification", mock.Anything, int64(2)).Return(&api.StatusError{Status: http.StatusNotFound}).Once()
	rec = performJSONRequest(t, env.router, http.MethodDelete, "/notifications/2", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, 1, env.svc.UnreadCount())

	rec = performJSONRequest(t, env.router, http.MethodPost, "/notifications/batch-delete", dto.BatchDeleteRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env.api.On("DeleteNotifications", mock.Anything, []int64{1}).Return(nil).Once()
	rec = performJSONRequest(t, env.router, http.MethodPost, "/notifications/clear-read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, dto.ClearReadResponse{Deleted: 1, UnreadCount: 1}, decode[dto.ClearReadResponse](t, rec))

	env.api.On("MarkAllAsRead", mock.Anything).Return(nil).Once()
	rec = performJSONRequest(t, env.router, http.MethodPut, "/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, decode[dto.UnreadCountResponse](t, rec).UnreadCount)

	env.api.On("UnreadCount", mock.Anything).Return(4, nil).Once()
	rec = performJSONRequest(t, env.router, http.MethodGet, "/notifications/unread-count?sync=true", nil)
	require.Equal(t, 4, decode[dto.UnreadCountResponse](t, rec).UnreadCount)
	env.api.AssertExpectations(t)
}

func TestPublishNotificationController(t *testing.T) {
	t.Run("missing fields", func(t *testing.T) {
		publisher := &publisherMock{}
		env := setupRouter(t, publisher)

		rec := performJSONRequest(t, env.router, http.MethodPost, "/notifications/publish", map[string]string{"title": "x"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, resp.CodeBadRequest, decode[dto.ErrorResponse](t, rec).Code)
		publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid type", func(t *testing.T) {
		publisher := &publisherMock{}
		env := setupRouter(t, publisher)

		rec := performJSONRequest(t, env.router, http.MethodPost, "/notifications/publish", dto.PublishRequest{Type: "bad", Title: "x"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("success", func(t *testing.T) {
		publisher := &publisherMock{}
		var frame []byte
		publisher.On("Publish", mock.Anything, mock.Anything, "notification.mention").Run(func(args mock.Arguments) {
			frame = args.Get(1).([]byte)
		}).Return(nil).Once()
		env := setupRouter(t, publisher)

		rec := performJSONRequest(t, env.router, http.MethodPost, "/notifications/publish", dto.PublishRequest{
			ID: 5, Type: "mention", Title: "ping", Content: "hello", Priority: "urgent",
		})
		require.Equal(t, http.StatusAccepted, rec.Code)
		require.Equal(t, resp.CodeQueued, decode[dto.StatusResponse](t, rec).Code)

		msg, err := ws.Decode(frame)
		require.NoError(t, err)
		n := msg.Payload.(ws.NotificationPayload).Notification
		require.Equal(t, int64(5), n.ID)
		require.Equal(t, model.PriorityUrgent, n.Priority)
		publisher.AssertExpectations(t)
	})

	t.Run("broker disabled", func(t *testing.T) {
		publisher := &publisherMock{}
		publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(queue.ErrBrokerDisabled).Once()
		env := setupRouter(t, publisher)

		rec := performJSONRequest(t, env.router, http.MethodPost, "/notifications/publish", dto.PublishRequest{Type: "system", Title: "x"})
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestPreferenceControllers(t *testing.T) {
	env := setupRouter(t, &publisherMock{})

	rec := performJSONRequest(t, env.router, http.MethodPost, "/preferences/desktop/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decode[dto.ToggleResponse](t, rec).Enabled)
	require.Len(t, env.effects.warnings, 1)

	rec = performJSONRequest(t, env.router, http.MethodPost, "/preferences/audio/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decode[dto.ToggleResponse](t, rec).Enabled)

	env.api.On("GetSettings", mock.Anything).Return(model.Settings{}, errors.New("down")).Once()
	rec = performJSONRequest(t, env.router, http.MethodGet, "/settings", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestConnectionControllers(t *testing.T) {
	env := setupRouter(t, &publisherMock{})

	rec := performJSONRequest(t, env.router, http.MethodPost, "/connection/connect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, model.StateOpen, decode[model.ConnectionStatus](t, rec).State)
	require.Equal(t, []string{"tok"}, env.conn.tokens)

	rec = performJSONRequest(t, env.router, http.MethodPut, "/token", dto.TokenRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env.conn.dialErr = errors.New("refused")
	rec = performJSONRequest(t, env.router, http.MethodPut, "/token", dto.TokenRequest{Token: "fresh"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, model.StateReconnectScheduled, decode[model.ConnectionStatus](t, rec).State)
	require.Equal(t, []string{"tok", "fresh"}, env.conn.tokens)
	require.Equal(t, 1, env.conn.dropped)

	rec = performJSONRequest(t, env.router, http.MethodPost, "/connection/disconnect", nil)
	require.Equal(t, model.StateDisconnected, decode[model.ConnectionStatus](t, rec).State)
}

func TestEventsController(t *testing.T) {
	env := setupRouter(t, &publisherMock{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.hub.Run(ctx)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	rec := performJSONRequest(t, env.router, http.MethodGet, "/events/lobby", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/connection", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	reader := bufio.NewReader(res.Body)
	readEvent := func() (string, string) {
		var kind, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				kind = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && kind != "":
				return kind, data
			}
		}
	}

	kind, data := readEvent()
	require.Equal(t, eventSnapshot, kind)
	require.JSONEq(t, `{"state":"idle","reconnectAttempts":0}`, data)

	require.Eventually(t, func() bool { return env.hub.Subscribers(model.RoomConnection) == 1 }, time.Second, 5*time.Millisecond)
	env.hub.Publish(model.RoomConnection, "connection.state", model.ConnectionStatus{State: model.StateOpen})
	kind, data = readEvent()
	require.Equal(t, "connection.state", kind)
	require.JSONEq(t, `{"state":"open","reconnectAttempts":0}`, data)
}
