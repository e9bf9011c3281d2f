package notify

import (
	"context"

	"go.uber.org/zap"
	"notifyd/internal/model"
	"notifyd/internal/ws"
)

// Bind subscribes the service to pushed frames. Notifications enter the
// cache; the other entity updates are forwarded to local subscribers as is.
func (s *Service) Bind(router *ws.Router) {
	ws.Subscribe(router, ws.TypeNotification, func(ctx context.Context, p ws.NotificationPayload) {
		s.AddNotification(ctx, p.Notification)
	})

	forward := func(ctx context.Context, msg ws.Message) {
		s.events.Publish(model.RoomNotifications, "push."+string(msg.Type), msg.Payload)
	}
	for _, t := range []ws.MessageType{
		ws.TypeTaskUpdate,
		ws.TypeDocumentUpdate,
		ws.TypeChangeUpdate,
		ws.TypeComment,
		ws.TypeMention,
		ws.TypeSystem,
	} {
		router.On(t, forward)
	}

	ws.Subscribe(router, ws.TypeError, func(_ context.Context, p ws.ErrorPayload) {
		s.log.Warn("server reported error", zap.String("code", p.Code), zap.String("message", p.Message))
	})
}
