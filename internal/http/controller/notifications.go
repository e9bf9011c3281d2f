package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"notifyd/internal/api"
	"notifyd/internal/config"
	"notifyd/internal/credential"
	"notifyd/internal/domain"
	"notifyd/internal/effects"
	"notifyd/internal/http/dto"
	"notifyd/internal/http/resp"
	"notifyd/internal/model"
	"notifyd/internal/queue"
	"notifyd/internal/service/notify"
	"notifyd/internal/sse"
	"notifyd/internal/ws"
)

// Connection is the push connection as seen by the local API.
type Connection interface {
	Status() model.ConnectionStatus
	Connect(ctx context.Context, token string) error
	Disconnect()
}

type Handler struct {
	cfg     *config.Config
	svc     *notify.Service
	hub     *sse.Hub
	conn    Connection
	session *credential.Session
	toasts  *effects.ToastQueue
	log     *zap.Logger
	pub     queue.Publisher
}

func NewHandler(
	cfg *config.Config,
	svc *notify.Service,
	hub *sse.Hub,
	conn Connection,
	session *credential.Session,
	toasts *effects.ToastQueue,
	logger *zap.Logger,
	publisher queue.Publisher,
) *Handler {
	return &Handler{
		cfg:     cfg,
		svc:     svc,
		hub:     hub,
		conn:    conn,
		session: session,
		toasts:  toasts,
		log:     logger,
		pub:     publisher,
	}
}

func (h *Handler) ListNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ListResponse{
		Items:       h.svc.Notifications(),
		Total:       h.svc.Total(),
		UnreadCount: h.svc.UnreadCount(),
	})
}

func (h *Handler) GroupedNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, dto.GroupedResponse{
		Groups:      h.svc.Grouped(),
		UnreadCount: h.svc.UnreadCount(),
	})
}

// RefreshNotifications replaces the local list with a server page.
func (h *Handler) RefreshNotifications(c *gin.Context) {
	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: resp.CodeBadRequest, Message: "invalid query"})
		return
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = h.cfg.PageSize
	}
	if q.Type != "" && !domain.IsValidNotificationType(q.Type) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: resp.CodeBadRequest, Message: "unknown notification type"})
		return
	}

	page, err := h.svc.FetchNotifications(c.Request.Context(), model.ListParams{
		Page:       q.Page,
		PageSize:   q.PageSize,
		UnreadOnly: q.UnreadOnly,
		Type:       q.Type,
	})
	if err != nil {
		h.writeUpstreamError(c, err, "failed to fetch notifications")
		return
	}
	c.JSON(http.StatusOK, dto.ListResponse{
		Items:       page.Items,
		Total:       page.Total,
		UnreadCount: h.svc.UnreadCount(),
	})
}

func (h *Handler) GetNotification(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	n, err := h.svc.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Code: resp.CodeNotFound, Message: "notification not found"})
		return
	}
	c.JSON(http.StatusOK, dto.NotificationResponse{Notification: n, Route: domain.ResolveLink(n)})
}

// UnreadCount returns the local counter; ?sync=true resyncs it from the
// server first.
func (h *Handler) UnreadCount(c *gin.Context) {
	if c.Query("sync") == "true" {
		if _, err := h.svc.FetchUnreadCount(c.Request.Context()); err != nil {
			h.writeUpstreamError(c, err, "failed to fetch unread count")
			return
		}
	}
	c.JSON(http.StatusOK, dto.UnreadCountResponse{UnreadCount: h.svc.UnreadCount()})
}

func (h *Handler) MarkAsRead(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.MarkAsRead(c.Request.Context(), id); err != nil {
		h.writeUpstreamError(c, err, "failed to mark notification as read")
		return
	}
	c.JSON(http.StatusOK, dto.UnreadCountResponse{UnreadCount: h.svc.UnreadCount()})
}

func (h *Handler) MarkAllAsRead(c *gin.Context) {
	if err := h.svc.MarkAllAsRead(c.Request.Context()); err != nil {
		h.writeUpstreamError(c, err, "failed to mark all notifications as read")
		return
	}
	c.JSON(http.StatusOK, dto.UnreadCountResponse{UnreadCount: h.svc.UnreadCount()})
}

func (h *Handler) DeleteNotification(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteNotification(c.Request.Context(), id); err != nil {
		h.writeUpstreamError(c, err, "failed to delete notification")
		return
	}
	c.JSON(http.StatusOK, dto.UnreadCountResponse{UnreadCount: h.svc.UnreadCount()})
}

func (h *Handler) BatchDelete(c *gin.Context) {
	var req dto.BatchDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: resp.CodeBadRequest, Message: "invalid json"})
		return
	}
	if len(req.IDs) == 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: resp.CodeBadRequest, Message: "ids are required"})
		return
	}
	if err := h.svc.DeleteNotifications(c.Request.Context(), req.IDs); err != nil {
		h.writeUpstreamError(c, err, "failed to delete notifications")
		return
	}
	c.JSON(http.StatusOK, dto.UnreadCountResponse{UnreadCount: h.svc.UnreadCount()})
}

func (h *Handler) ClearRead(c *gin.Context) {
	n, err := h.svc.ClearRead(c.Request.Context())
	if err != nil {
		h.writeUpstreamError(c, err, "failed to clear read notifications")
		return
	}
	c.JSON(http.StatusOK, dto.ClearReadResponse{Deleted: n, UnreadCount: h.svc.UnreadCount()})
}

// PublishNotification injects a notification frame through the broker. It
// reaches the store the same way a server push does.
func (h *Handler) PublishNotification(c *gin.Context) {
	var req dto.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: resp.CodeBadRequest, Message: "invalid json"})
		return
	}
	if req.Type == "" || req.Title == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: resp.CodeBadRequest, Message: "type and title are required"})
		return
	}
	if !domain.IsValidNotificationType(req.Type) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: resp.CodeBadRequest, Message: "unknown notification type"})
		return
	}
	if req.ID == 0 {
		req.ID = time.Now().UnixMilli()
	}

	payload, err := json.Marshal(ws.Outbound{
		Type: ws.TypeNotification,
		Data: model.Notification{
			ID:        req.ID,
			Title:     req.Title,
			Content:   req.Content,
			Type:      req.Type,
			Priority:  model.Priority(req.Priority),
			Link:      req.Link,
			CreatedAt: time.Now().UTC(),
		},
	})
	if err != nil {
		h.log.Error("publish payload marshal failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Code: resp.CodeInternalError, Message: "failed to publish notification"})
		return
	}

	prefix := h.cfg.RabbitPublishPrefix
	if prefix == "" {
		prefix = "notification"
	}
	routingKey := prefix + "." + req.Type
	if err := h.pub.Publish(c.Request.Context(), payload, routingKey); err != nil {
		if errors.Is(err, queue.ErrBrokerDisabled) {
			c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Code: resp.CodeUnavailable, Message: "message broker not configured"})
			return
		}
		h.log.Error("publish notification failed",
			zap.Int64("id", req.ID),
			zap.String("type", req.Type),
			zap.String("title", req.Title),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Code: resp.CodeInternalError, Message: "failed to publish notification"})
		return
	}

	c.JSON(http.StatusAccepted, dto.StatusResponse{Code: resp.CodeQueued, Message: "queued"})
}

func (h *Handler) ActiveToasts(c *gin.Context) {
	c.JSON(http.StatusOK, h.toasts.Active())
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: resp.CodeBadRequest, Message: "invalid id"})
		return 0, false
	}
	return id, true
}

// writeUpstreamError maps a failed platform call to a visible failure. The
// service has already logged it.
func (h *Handler) writeUpstreamError(c *gin.Context, err error, message string) {
	var statusErr *api.StatusError
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Code: resp.CodeUnauthorized, Message: "platform rejected the api token"})
	case errors.As(err, &statusErr) && statusErr.Status == http.StatusNotFound:
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Code: resp.CodeNotFound, Message: message})
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{Code: resp.CodeUpstreamError, Message: message})
	}
}
