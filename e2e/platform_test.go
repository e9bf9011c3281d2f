package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"notifyd/internal/api"
	"notifyd/internal/app"
	"notifyd/internal/config"
	"notifyd/internal/credential"
	"notifyd/internal/effects"
	httpserver "notifyd/internal/http"
	"notifyd/internal/http/controller"
	"notifyd/internal/metrics"
	"notifyd/internal/model"
	"notifyd/internal/queue"
	"notifyd/internal/service/notify"
	"notifyd/internal/sse"
	"notifyd/internal/store/memory"
	syncer "notifyd/internal/sync"
	"notifyd/internal/ws"
)

func ginTestMode() {
	gin.SetMode(gin.TestMode)
}

type noopPublisher struct{}

func (n *noopPublisher) Publish(ctx context.Context, payload []byte, routingKey string) error {
	_ = ctx
	_ = payload
	_ = routingKey
	return queue.ErrBrokerDisabled
}

// platform fakes the remote project-management server: the push socket and
// the notification REST endpoints.
type platform struct {
	*httptest.Server

	conns chan *websocket.Conn

	mu     sync.Mutex
	items  []model.Notification
	read   []int64
	tokens []string
}

func newPlatform(t *testing.T) *platform {
	t.Helper()
	p := &platform{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/notifications", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.tokens = append(p.tokens, r.URL.Query().Get("token"))
		p.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p.conns <- conn
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("GET /api/notifications", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		page := model.Page{Items: append([]model.Notification(nil), p.items...), Total: len(p.items)}
		p.mu.Unlock()
		writeJSON(w, page)
	})
	mux.HandleFunc("GET /api/notifications/unread-count", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		count := 0
		for _, n := range p.items {
			if !n.IsRead {
				count++
			}
		}
		p.mu.Unlock()
		writeJSON(w, map[string]int{"count": count})
	})
	mux.HandleFunc("PUT /api/notifications/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "bad id", http.StatusBadRequest)
			return
		}
		p.mu.Lock()
		p.read = append(p.read, id)
		for i := range p.items {
			if p.items[i].ID == id {
				p.items[i].IsRead = true
			}
		}
		p.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *platform) setItems(items ...model.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = items
}

func (p *platform) readIDs() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.read...)
}

func (p *platform) seenTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.tokens...)
}

func (p *platform) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-p.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("client never connected")
		return nil
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// stack is the agent wired the way the binary wires it, against a fake platform.
type stack struct {
	server  *httptest.Server
	app     *app.App
	svc     *notify.Service
	client  *ws.Client
	hub     *sse.Hub
	metrics *metrics.Metrics
}

func newStack(t *testing.T, p *platform, publisher queue.Publisher) *stack {
	t.Helper()
	ginTestMode()

	cfg := &config.Config{
		HTTPAddr:             "127.0.0.1:0",
		SSEHeartbeat:         time.Hour,
		APIBase:              p.URL + "/api",
		WSBase:               "ws" + strings.TrimPrefix(p.URL, "http") + "/ws",
		Token:                "tok",
		ReconnectInterval:    20 * time.Millisecond,
		MaxReconnectInterval: 100 * time.Millisecond,
		MaxReconnectAttempts: 5,
		HeartbeatInterval:    time.Hour,
		PollInterval:         time.Hour,
		PageSize:             20,
		RequestTimeout:       2 * time.Second,
		ToastTTL:             time.Minute,
		RabbitPublishPrefix:  "notification",
		OTELServiceName:      "notifyd-e2e",
	}
	logger := zap.NewNop()

	hub := sse.NewHub()
	m := metrics.New()
	session := credential.NewSession(cfg, credential.NewVault(), logger)
	toasts := effects.NewToastQueue(cfg.ToastTTL, hub)
	bridge := effects.NewBridge(
		effects.NewCommandDesktop("notifyd-e2e-missing-notifier"),
		effects.NewCommandPlayer("notifyd-e2e-missing-player", "missing.wav", 0.5),
		toasts,
		m,
		logger,
	)
	svc := notify.NewService(api.NewFromConfig(cfg, session, logger), memory.New(logger), bridge, hub, m, logger)
	router := ws.NewRouter(logger)
	client := ws.NewClient(ws.Options{
		BaseURL:              cfg.WSBase,
		ReconnectInterval:    cfg.ReconnectInterval,
		MaxReconnectInterval: cfg.MaxReconnectInterval,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		HeartbeatInterval:    cfg.HeartbeatInterval,
	}, router, logger, ws.WithInstrumentation(m))
	poller := syncer.New(svc, cfg.PollInterval, cfg.PageSize, logger)

	handler := controller.NewHandler(cfg, svc, hub, client, session, toasts, logger, publisher)
	engine := httpserver.NewRouter(cfg, handler, m, logger)
	tracing := func(context.Context) error { return nil }
	a := app.NewApp(cfg, hub, noopConsumer{}, engine, svc, client, poller, bridge, session, m, tracing, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(engine)
	t.Cleanup(func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 3*time.Second)
		defer stop()
		_ = a.Shutdown(shutdownCtx)
		server.Close()
		cancel()
	})

	return &stack{server: server, app: a, svc: svc, client: client, hub: hub, metrics: m}
}

type noopConsumer struct{}

func (noopConsumer) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// subscribe opens an event stream and waits until the hub has registered it.
func (s *stack) subscribe(t *testing.T, room string) *sseStream {
	t.Helper()
	before := s.hub.Subscribers(room)
	resp, err := http.Get(s.server.URL + "/events/" + room)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stream := &sseStream{reader: bufio.NewReader(resp.Body)}
	kind, _ := stream.next(t, 2*time.Second)
	require.Equal(t, "snapshot", kind)
	require.Eventually(t, func() bool { return s.hub.Subscribers(room) > before }, 2*time.Second, 5*time.Millisecond)
	return stream
}

type sseStream struct {
	reader *bufio.Reader
}

// next returns the event name and data of the next event on the stream.
func (s *sseStream) next(t *testing.T, timeout time.Duration) (string, string) {
	t.Helper()
	type result struct {
		kind string
		data string
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		var kind string
		var dataLines []string
		for {
			line, err := s.reader.ReadString('\n')
			if err != nil {
				ch <- result{err: err}
				return
			}
			line = strings.TrimRight(line, "\r\n")
			if line == "" {
				if len(dataLines) > 0 {
					ch <- result{kind: kind, data: strings.Join(dataLines, "\n")}
					return
				}
				continue
			}
			if strings.HasPrefix(line, ":") {
				continue
			}
			if strings.HasPrefix(line, "event:") {
				kind = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
			if strings.HasPrefix(line, "data:") {
				dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			}
		}
	}()

	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return res.kind, res.data
	case <-time.After(timeout):
		t.Fatalf("no event within %s", timeout)
		return "", ""
	}
}

// until skips events until one named kind arrives and returns its data.
func (s *sseStream) until(t *testing.T, kind string, timeout time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		require.Positive(t, remaining, "no %s event within %s", kind, timeout)
		got, data := s.next(t, remaining)
		if got == kind {
			return data
		}
	}
}

func getBody(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}
