package dto

import (
	"notifyd/internal/domain"
	"notifyd/internal/model"
)

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type StatusResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type ListQuery struct {
	Page       int    `form:"page"`
	PageSize   int    `form:"pageSize"`
	UnreadOnly bool   `form:"unreadOnly"`
	Type       string `form:"type"`
}

type ListResponse struct {
	Items       []model.Notification `json:"items"`
	Total       int                  `json:"total"`
	UnreadCount int                  `json:"unreadCount"`
}

type GroupedResponse struct {
	Groups      []domain.Group `json:"groups"`
	UnreadCount int            `json:"unreadCount"`
}

type NotificationResponse struct {
	model.Notification
	Route string `json:"route,omitempty"`
}

type UnreadCountResponse struct {
	UnreadCount int `json:"unreadCount"`
}

type BatchDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

type ClearReadResponse struct {
	Deleted     int `json:"deleted"`
	UnreadCount int `json:"unreadCount"`
}

type ToggleResponse struct {
	Enabled bool `json:"enabled"`
}

type PublishRequest struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Priority string `json:"priority"`
	Link     string `json:"link"`
}

type TokenRequest struct {
	Token   string `json:"token"`
	Persist bool   `json:"persist"`
}
