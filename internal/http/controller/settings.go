package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"notifyd/internal/http/dto"
	"notifyd/internal/http/resp"
	"notifyd/internal/model"
)

func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.svc.FetchSettings(c.Request.Context())
	if err != nil {
		if cached, ok := h.svc.Settings(); ok {
			c.Header("Warning", `110 - "served from cache"`)
			c.JSON(http.StatusOK, cached)
			return
		}
		h.writeUpstreamError(c, err, "failed to fetch settings")
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var req model.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: resp.CodeBadRequest, Message: "invalid json"})
		return
	}
	updated, err := h.svc.UpdateSettings(c.Request.Context(), req)
	if err != nil {
		h.writeUpstreamError(c, err, "failed to update settings")
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) GetPreferences(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Preferences())
}

func (h *Handler) ToggleAudio(c *gin.Context) {
	enabled, err := h.svc.ToggleAudio(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Code: resp.CodeInternalError, Message: "failed to store preference"})
		return
	}
	c.JSON(http.StatusOK, dto.ToggleResponse{Enabled: enabled})
}

func (h *Handler) ToggleDesktop(c *gin.Context) {
	enabled, err := h.svc.ToggleDesktopNotification(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Code: resp.CodeInternalError, Message: "failed to update desktop notifications"})
		return
	}
	c.JSON(http.StatusOK, dto.ToggleResponse{Enabled: enabled})
}
