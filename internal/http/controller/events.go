package controller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"notifyd/internal/http/dto"
	"notifyd/internal/http/resp"
	"notifyd/internal/model"
	"notifyd/internal/sse"
)

const eventSnapshot = "snapshot"

var rooms = map[string]bool{
	model.RoomNotifications: true,
	model.RoomToasts:        true,
	model.RoomConnection:    true,
}

// Events streams one room of the local event stream as server-sent events.
// Each stream starts with a snapshot of the room's current state.
func (h *Handler) Events(c *gin.Context) {
	room := c.Param("room")
	if !rooms[room] {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: resp.CodeBadRequest, Message: "room must be one of: notifications, toasts, connection"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		h.log.Error("streaming unsupported", zap.String("room", room))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Code: resp.CodeInternalError, Message: "streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	client := sse.NewClient(room, 16)
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	if err := writeEvent(c.Writer, h.snapshot(room)); err != nil {
		h.log.Error("write snapshot failed", zap.String("room", room), zap.Error(err))
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.cfg.SSEHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				h.log.Error("heartbeat write failed", zap.String("room", room), zap.Error(err))
				return
			}
			flusher.Flush()
		case event, ok := <-client.Ch:
			if !ok {
				return
			}
			if err := writeEvent(c.Writer, event); err != nil {
				h.log.Error("write event failed", zap.String("room", room), zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) snapshot(room string) model.Event {
	var data any
	switch room {
	case model.RoomNotifications:
		data = dto.ListResponse{
			Items:       h.svc.Notifications(),
			Total:       h.svc.Total(),
			UnreadCount: h.svc.UnreadCount(),
		}
	case model.RoomToasts:
		data = h.toasts.Active()
	case model.RoomConnection:
		data = h.conn.Status()
	}
	return model.Event{
		ID:        uuid.NewString(),
		Room:      room,
		Kind:      eventSnapshot,
		Data:      data,
		CreatedAt: time.Now(),
	}
}

func writeEvent(w http.ResponseWriter, event model.Event) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Kind, payload)
	return err
}
