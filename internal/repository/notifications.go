package repository

import (
	"context"

	"notifyd/internal/model"
)

// NotificationAPI is the platform's REST surface for notifications. The server
// owns the truth; the local store reconciles against it.
type NotificationAPI interface {
	ListNotifications(ctx context.Context, params model.ListParams) (model.Page, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkAsRead(ctx context.Context, id int64) error
	MarkAllAsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id int64) error
	DeleteNotifications(ctx context.Context, ids []int64) error
	GetSettings(ctx context.Context) (model.Settings, error)
	UpdateSettings(ctx context.Context, settings model.Settings) (model.Settings, error)
}
