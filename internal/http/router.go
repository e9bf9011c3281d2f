package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"notifyd/internal/config"
	"notifyd/internal/http/controller"
	"notifyd/internal/http/middleware"
	"notifyd/internal/metrics"
)

func NewRouter(cfg *config.Config, handler *controller.Handler, m *metrics.Metrics, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		otelgin.Middleware(cfg.OTELServiceName),
		middleware.ZapLogger(logger),
		middleware.ZapRecovery(logger),
	)

	router.GET("/health", func(c *gin.Context) {
		c.Status(200)
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	notifications := router.Group("/notifications")
	notifications.GET("", handler.ListNotifications)
	notifications.GET("/grouped", handler.GroupedNotifications)
	notifications.POST("/refresh", handler.RefreshNotifications)
	notifications.GET("/unread-count", handler.UnreadCount)
	notifications.PUT("/read-all", handler.MarkAllAsRead)
	notifications.POST("/batch-delete", handler.BatchDelete)
	notifications.POST("/clear-read", handler.ClearRead)
	notifications.POST("/publish", handler.PublishNotification)
	notifications.GET("/:id", handler.GetNotification)
	notifications.PUT("/:id/read", handler.MarkAsRead)
	notifications.DELETE("/:id", handler.DeleteNotification)

	router.GET("/settings", handler.GetSettings)
	router.PUT("/settings", handler.UpdateSettings)
	router.GET("/preferences", handler.GetPreferences)
	router.POST("/preferences/audio/toggle", handler.ToggleAudio)
	router.POST("/preferences/desktop/toggle", handler.ToggleDesktop)

	router.GET("/connection", handler.ConnectionStatus)
	router.POST("/connection/connect", handler.Connect)
	router.POST("/connection/disconnect", handler.Disconnect)
	router.PUT("/token", handler.SetToken)

	router.GET("/toasts", handler.ActiveToasts)
	router.GET("/events/:room", handler.Events)

	return router
}
