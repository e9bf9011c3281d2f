package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"notifyd/internal/http/dto"
	"notifyd/internal/http/resp"
)

func (h *Handler) ConnectionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.conn.Status())
}

// Connect (re)opens the push connection. The connection outlives the request.
func (h *Handler) Connect(c *gin.Context) {
	if !h.session.HasToken() {
		c.JSON(http.StatusConflict, dto.ErrorResponse{Code: resp.CodeConflict, Message: "no api token configured"})
		return
	}
	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.conn.Connect(ctx, h.session.Token()); err != nil {
		// a reconnect is already scheduled; report the state rather than fail
		h.log.Warn("connect requested but dial failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, h.conn.Status())
}

func (h *Handler) Disconnect(c *gin.Context) {
	h.conn.Disconnect()
	c.JSON(http.StatusOK, h.conn.Status())
}

// SetToken replaces the api token and reconnects with it.
func (h *Handler) SetToken(c *gin.Context) {
	var req dto.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: resp.CodeBadRequest, Message: "token is required"})
		return
	}
	if err := h.session.Set(req.Token, req.Persist); err != nil {
		h.log.Error("store api token failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Code: resp.CodeInternalError, Message: "failed to store token"})
		return
	}
	h.conn.Disconnect()
	if err := h.conn.Connect(context.WithoutCancel(c.Request.Context()), req.Token); err != nil {
		h.log.Warn("reconnect with new token failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, h.conn.Status())
}
