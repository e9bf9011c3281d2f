package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"notifyd/internal/config"
	"notifyd/internal/credential"
	"notifyd/internal/model"
)

// ErrUnauthorized is returned when the platform rejects the token.
var ErrUnauthorized = errors.New("api: unauthorized")

// StatusError is a non-2xx response from the platform.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// TokenSource yields the bearer token for each request.
type TokenSource func() string

// Client talks to the platform's notification REST endpoints. Concurrent GETs
// for the same path and query share one round trip.
type Client struct {
	baseURL    string
	token      TokenSource
	httpClient *http.Client
	group      singleflight.Group
	log        *zap.Logger
}

func NewClient(baseURL string, token TokenSource, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger,
	}
}

// NewFromConfig builds a client whose token is read from session on every
// call, so a token stored after startup is picked up.
func NewFromConfig(cfg *config.Config, session *credential.Session, logger *zap.Logger) *Client {
	return NewClient(cfg.APIBase, session.Token, cfg.RequestTimeout, logger)
}

type unreadCountResponse struct {
	Count int `json:"count"`
}

type batchDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

func (c *Client) ListNotifications(ctx context.Context, params model.ListParams) (model.Page, error) {
	q := url.Values{}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(params.PageSize))
	}
	if params.UnreadOnly {
		q.Set("unreadOnly", "true")
	}
	if params.Type != "" {
		q.Set("type", params.Type)
	}
	var page model.Page
	if err := c.get(ctx, "/notifications", q, &page); err != nil {
		return model.Page{}, err
	}
	return page, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp unreadCountResponse
	if err := c.get(ctx, "/notifications/unread-count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) MarkAsRead(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPut, "/notifications/"+strconv.FormatInt(id, 10)+"/read", nil, nil, nil)
}

func (c *Client) MarkAllAsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/notifications/read-all", nil, nil, nil)
}

func (c *Client) DeleteNotification(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/notifications/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

func (c *Client) DeleteNotifications(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/notifications/batch-delete", nil, batchDeleteRequest{IDs: ids}, nil)
}

func (c *Client) GetSettings(ctx context.Context) (model.Settings, error) {
	var settings model.Settings
	if err := c.get(ctx, "/notifications/settings", nil, &settings); err != nil {
		return model.Settings{}, err
	}
	return settings, nil
}

func (c *Client) UpdateSettings(ctx context.Context, settings model.Settings) (model.Settings, error) {
	var updated model.Settings
	if err := c.do(ctx, http.MethodPut, "/notifications/settings", nil, settings, &updated); err != nil {
		return model.Settings{}, err
	}
	return updated, nil
}

// get deduplicates identical in-flight GETs. The shared call runs detached
// from any single caller's cancellation; each caller still stops waiting when
// its own context ends.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	key := path + "?" + query.Encode()
	ch := c.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.httpClient.Timeout)
		defer cancel()
		var raw json.RawMessage
		if err := c.do(callCtx, http.MethodGet, path, query, nil, &raw); err != nil {
			return nil, err
		}
		return raw, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.log.Debug("api get shared in-flight request", zap.String("path", path))
		}
		if res.Err != nil {
			return res.Err
		}
		raw, _ := res.Val.(json.RawMessage)
		if len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("api: decode %s: %w", path, err)
		}
		return nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read %s %s: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: decode %s %s: %w", method, path, err)
	}
	return nil
}
