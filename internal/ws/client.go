package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"notifyd/internal/domain"
	"notifyd/internal/model"
	"notifyd/internal/telemetry"
)

// Conn is the subset of *websocket.Conn the client uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. It exists so tests can observe and fire
// reconnect timers by hand.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Instrumentation receives connection and frame counters.
type Instrumentation interface {
	FrameReceived(msgType string)
	FrameDropped(reason string)
	ReconnectScheduled()
}

type nopInstrumentation struct{}

func (nopInstrumentation) FrameReceived(string) {}
func (nopInstrumentation) FrameDropped(string)  {}
func (nopInstrumentation) ReconnectScheduled()  {}

type Options struct {
	// BaseURL is the WebSocket base, e.g. wss://pm.example.com/ws.
	BaseURL              string
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
}

type Option func(*Client)

func WithDialer(d Dialer) Option            { return func(c *Client) { c.dialer = d } }
func WithScheduler(s Scheduler) Option      { return func(c *Client) { c.scheduler = s } }
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }
func WithInstrumentation(i Instrumentation) Option {
	return func(c *Client) { c.instr = i }
}

// Client keeps one logical push connection open. Unexpected closes are retried
// with exponential backoff, base ReconnectInterval doubling per attempt and
// capped at MaxReconnectInterval, until MaxReconnectAttempts is reached.
type Client struct {
	opts      Options
	router    *Router
	dialer    Dialer
	scheduler Scheduler
	instr     Instrumentation
	now       func() time.Time
	log       *zap.Logger

	mu             sync.Mutex
	ctx            context.Context
	conn           Conn
	token          string
	state          model.ConnectionState
	manual         bool
	attempts       int
	generation     uint64
	reconnectTimer Timer
	heartbeatStop  chan struct{}
	backoff        *backoff.ExponentialBackOff
	listeners      []func(model.ConnectionStatus)

	writeMu sync.Mutex
}

func NewClient(opts Options, router *Router, logger *zap.Logger, options ...Option) *Client {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = time.Second
	}
	if opts.MaxReconnectInterval <= 0 {
		opts.MaxReconnectInterval = 30 * time.Second
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	c := &Client{
		opts:      opts,
		router:    router,
		dialer:    NewGorillaDialer(10 * time.Second),
		scheduler: realScheduler{},
		instr:     nopInstrumentation{},
		now:       time.Now,
		log:       logger,
		ctx:       context.Background(),
		state:     model.StateIdle,
		backoff:   newBackoff(opts.ReconnectInterval, opts.MaxReconnectInterval),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

func newBackoff(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Endpoint builds {base}/notifications?token={token}. Browsers cannot set
// headers on the handshake, so the token travels in the query.
func Endpoint(base, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/notifications")
	if err != nil {
		return "", fmt.Errorf("ws: parse base url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) Router() *Router {
	return c.router
}

// On and Off register handlers on the client's router.
func (c *Client) On(t MessageType, fn Handler) HandlerID { return c.router.On(t, fn) }
func (c *Client) Off(t MessageType, id HandlerID) bool   { return c.router.Off(t, id) }

func (c *Client) OnStateChange(fn func(model.ConnectionStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == model.StateOpen
}

func (c *Client) Status() model.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Client) statusLocked() model.ConnectionStatus {
	return model.ConnectionStatus{State: c.state, ReconnectAttempts: c.attempts}
}

// Connect opens the connection unless one is already open or being opened.
// ctx bounds the whole session: once it is done no reconnect is attempted.
// A failed dial is returned and also handled like a close, so a reconnect
// may already be scheduled when Connect returns an error.
func (c *Client) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.state == model.StateOpen || c.state == model.StateConnecting {
		c.mu.Unlock()
		return nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.ctx = ctx
	c.token = token
	c.manual = false
	c.attempts = 0
	c.backoff.Reset()
	gen := c.beginConnectLocked()
	c.mu.Unlock()
	c.emitState()

	return c.dial(gen)
}

func (c *Client) beginConnectLocked() uint64 {
	c.generation++
	c.state = model.StateConnecting
	return c.generation
}

func (c *Client) dial(gen uint64) error {
	c.mu.Lock()
	ctx, token := c.ctx, c.token
	c.mu.Unlock()

	endpoint, err := Endpoint(c.opts.BaseURL, token)
	if err != nil {
		c.handleClose(gen, err)
		return err
	}
	conn, err := c.dialer.Dial(ctx, endpoint)
	if err != nil {
		c.log.Warn("ws dial failed", zap.String("base", c.opts.BaseURL), zap.Error(err))
		c.handleClose(gen, err)
		return fmt.Errorf("ws dial: %w", err)
	}

	c.mu.Lock()
	if gen != c.generation || c.manual {
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.state = model.StateOpen
	c.attempts = 0
	c.backoff.Reset()
	stop := make(chan struct{})
	c.heartbeatStop = stop
	c.mu.Unlock()

	c.log.Info("ws connected", zap.String("base", c.opts.BaseURL))
	c.emitState()
	go c.heartbeat(stop)
	go c.readLoop(conn, gen)
	return nil
}

func (c *Client) readLoop(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	msg, err := Decode(data)
	switch {
	case errors.Is(err, ErrUnknownType):
		c.instr.FrameDropped("unknown_type")
		c.log.Debug("ws ignoring unknown message type", zap.String("type", string(msg.Type)))
		return
	case err != nil:
		c.instr.FrameDropped("malformed")
		c.log.Warn("ws malformed frame", zap.Int("bytes", len(data)), zap.Error(err))
		return
	}
	c.instr.FrameReceived(string(msg.Type))

	if msg.Type == TypePing {
		if err := c.Send(Outbound{Type: TypePong, Timestamp: c.now().UnixMilli()}); err != nil {
			c.log.Debug("ws pong not sent", zap.Error(err))
		}
	}

	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	ctx, span := telemetry.Tracer("ws").Start(ctx, "ws.dispatch")
	span.SetAttributes(attribute.String("ws.message_type", string(msg.Type)))
	n := c.router.Dispatch(ctx, msg)
	span.SetAttributes(attribute.Int("ws.handlers", n))
	span.End()
}

// handleClose runs for every end of a connection attempt: read errors on an
// open socket and failed dials alike. Closes from superseded generations are
// ignored.
func (c *Client) handleClose(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.stopHeartbeatLocked()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	if c.manual {
		c.state = model.StateDisconnected
		c.mu.Unlock()
		c.emitState()
		return
	}
	if c.ctx.Err() != nil {
		c.state = model.StateClosed
		c.mu.Unlock()
		c.log.Info("ws closed after context end", zap.Error(cause))
		c.emitState()
		return
	}
	if c.attempts >= c.opts.MaxReconnectAttempts {
		c.state = model.StateExhausted
		attempts := c.attempts
		c.mu.Unlock()
		c.log.Error("ws reconnect attempts exhausted", zap.Int("attempts", attempts), zap.Error(cause))
		c.emitState()
		return
	}

	c.attempts++
	delay := c.backoff.NextBackOff()
	c.state = model.StateReconnectScheduled
	attempt := c.attempts
	c.reconnectTimer = c.scheduler.AfterFunc(delay, func() { c.reconnect(gen) })
	c.mu.Unlock()

	c.instr.ReconnectScheduled()
	c.log.Warn("ws connection closed, reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Int("max_attempts", c.opts.MaxReconnectAttempts),
		zap.Duration("delay", delay),
		zap.NamedError("cause", cause),
	)
	c.emitState()
}

func (c *Client) reconnect(scheduledBy uint64) {
	c.mu.Lock()
	if c.manual || scheduledBy != c.generation || c.state != model.StateReconnectScheduled {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	gen := c.beginConnectLocked()
	c.mu.Unlock()
	c.emitState()

	_ = c.dial(gen)
}

// Disconnect closes the connection and suppresses reconnection until the next
// Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manual = true
	c.generation++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.stopHeartbeatLocked()
	conn := c.conn
	c.conn = nil
	c.state = model.StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	c.log.Info("ws disconnected")
	c.emitState()
}

// Send writes msg when the connection is open. Otherwise the message is
// dropped with a warning; there is no send queue.
func (c *Client) Send(msg any) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == model.StateOpen
	c.mu.Unlock()
	if !open || conn == nil {
		c.log.Warn("ws send dropped, not connected")
		return domain.ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ws marshal: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.Warn("ws write failed", zap.Error(err))
		return fmt.Errorf("ws write: %w", err)
	}
	return nil
}

func (c *Client) heartbeat(stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.IsConnected() {
				return
			}
			if err := c.Send(Outbound{Type: TypePing, Timestamp: c.now().UnixMilli()}); err != nil {
				return
			}
		}
	}
}

func (c *Client) stopHeartbeatLocked() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
}

func (c *Client) emitState() {
	c.mu.Lock()
	status := c.statusLocked()
	listeners := append([]func(model.ConnectionStatus){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(status)
	}
}
