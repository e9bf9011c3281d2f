package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"notifyd/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, func() string { return "tok" }, 2*time.Second, zap.NewNop())
}

func TestListNotifications(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/notifications", r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "10", r.URL.Query().Get("pageSize"))
		require.Equal(t, "true", r.URL.Query().Get("unreadOnly"))
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"items":[{"id":1,"title":"a","isRead":false},{"id":2,"title":"b","read":true}],"total":12}`))
	})

	page, err := client.ListNotifications(context.Background(), model.ListParams{Page: 2, PageSize: 10, UnreadOnly: true})
	require.NoError(t, err)
	require.Equal(t, 12, page.Total)
	require.Len(t, page.Items, 2)
	require.False(t, page.Items[0].IsRead)
	require.True(t, page.Items[1].IsRead)
}

func TestUnreadCount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/notifications/unread-count", r.URL.Path)
		_, _ = w.Write([]byte(`{"count":7}`))
	})

	n, err := client.UnreadCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, n)
}

func TestMutations(t *testing.T) {
	type call struct {
		method string
		path   string
		body   string
	}
	var (
		mu    sync.Mutex
		calls []call
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		calls = append(calls, call{r.Method, r.URL.Path, string(body)})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()

	require.NoError(t, client.MarkAsRead(ctx, 5))
	require.NoError(t, client.MarkAllAsRead(ctx))
	require.NoError(t, client.DeleteNotification(ctx, 9))
	require.NoError(t, client.DeleteNotifications(ctx, []int64{1, 2}))
	require.NoError(t, client.DeleteNotifications(ctx, nil))

	require.Equal(t, []call{
		{http.MethodPut, "/notifications/5/read", ""},
		{http.MethodPut, "/notifications/read-all", ""},
		{http.MethodDelete, "/notifications/9", ""},
		{http.MethodPost, "/notifications/batch-delete", `{"ids":[1,2]}`},
	}, calls)
}

func TestSettingsRoundTrip(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/notifications/settings", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"emailEnabled":true,"pushEnabled":false}`))
		case http.MethodPut:
			var s model.Settings
			require.NoError(t, json.NewDecoder(r.Body).Decode(&s))
			_ = json.NewEncoder(w).Encode(s)
		}
	})
	ctx := context.Background()

	s, err := client.GetSettings(ctx)
	require.NoError(t, err)
	require.True(t, s.EmailEnabled)

	updated, err := client.UpdateSettings(ctx, model.Settings{PushEnabled: true, Types: map[string]bool{"mention": false}})
	require.NoError(t, err)
	require.True(t, updated.PushEnabled)
	require.Equal(t, map[string]bool{"mention": false}, updated.Types)
}

func TestErrorStatuses(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := client.UnreadCount(context.Background())
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("server error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		err := client.MarkAsRead(context.Background(), 1)
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		require.Equal(t, http.StatusInternalServerError, statusErr.Status)
	})
}

func TestConcurrentGetsShareOneRequest(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"count":3}`))
	})

	const callers = 5
	var wg sync.WaitGroup
	results := make(chan int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := client.UnreadCount(context.Background())
			require.NoError(t, err)
			results <- n
		}()
	}

	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	require.Equal(t, int32(1), hits.Load())
	for n := range results {
		require.Equal(t, 3, n)
	}
}
