package e2e

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"notifyd/internal/app"
	"notifyd/internal/model"
	"notifyd/internal/service/notify"
)

func TestReconnectResyncsMissedNotifications(t *testing.T) {
	p := newPlatform(t)
	s := newStack(t, p, &noopPublisher{})

	require.NoError(t, s.client.Connect(context.Background(), "tok"))
	first := p.accept(t)

	states := s.subscribe(t, model.RoomConnection)
	notifications := s.subscribe(t, model.RoomNotifications)

	// pushed while the socket is down; only the resync can deliver it
	p.setItems(model.Notification{ID: 42, Title: "missed", Type: "mention", CreatedAt: time.Now()})
	require.NoError(t, first.Close())

	seen := map[model.ConnectionState]bool{}
	var status model.ConnectionStatus
	for status.State != model.StateOpen {
		data := states.until(t, app.EventConnectionState, 2*time.Second)
		require.NoError(t, json.Unmarshal([]byte(data), &status))
		seen[status.State] = true
	}
	require.True(t, seen[model.StateReconnectScheduled])
	require.Zero(t, status.ReconnectAttempts)
	p.accept(t)

	require.Eventually(t, func() bool {
		got, err := s.svc.Get(42)
		return err == nil && got.Title == "missed" && s.svc.UnreadCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	notifications.until(t, notify.EventRefreshed, 2*time.Second)
}

func TestManualDisconnectDoesNotReconnect(t *testing.T) {
	p := newPlatform(t)
	s := newStack(t, p, &noopPublisher{})

	require.NoError(t, s.client.Connect(context.Background(), "tok"))
	p.accept(t)

	s.client.Disconnect()
	require.Equal(t, model.StateDisconnected, s.client.Status().State)

	select {
	case <-p.conns:
		t.Fatal("client reconnected after a manual disconnect")
	case <-time.After(300 * time.Millisecond):
	}
	require.Len(t, p.seenTokens(), 1)
}
