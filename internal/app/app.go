package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"notifyd/internal/config"
	"notifyd/internal/credential"
	"notifyd/internal/effects"
	"notifyd/internal/metrics"
	"notifyd/internal/model"
	"notifyd/internal/queue"
	"notifyd/internal/service/notify"
	"notifyd/internal/sse"
	syncer "notifyd/internal/sync"
	"notifyd/internal/telemetry"
	"notifyd/internal/ws"
)

const (
	EventConnectionState = "connection.state"

	connectionLostMessage = "Real-time connection lost; notifications will sync periodically"
)

type App struct {
	cfg      *config.Config
	hub      *sse.Hub
	consumer queue.Consumer
	server   *http.Server
	svc      *notify.Service
	conn     *ws.Client
	poller   *syncer.Poller
	bridge   *effects.Bridge
	session  *credential.Session
	metrics  *metrics.Metrics
	tracing  telemetry.Shutdown
	logger   *zap.Logger
	wg       sync.WaitGroup

	opened atomic.Bool
}

func NewApp(
	cfg *config.Config,
	hub *sse.Hub,
	consumer queue.Consumer,
	router *gin.Engine,
	svc *notify.Service,
	conn *ws.Client,
	poller *syncer.Poller,
	bridge *effects.Bridge,
	session *credential.Session,
	m *metrics.Metrics,
	tracing telemetry.Shutdown,
	logger *zap.Logger,
) *App {
	a := &App{
		cfg:      cfg,
		hub:      hub,
		consumer: consumer,
		server: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		svc:     svc,
		conn:    conn,
		poller:  poller,
		bridge:  bridge,
		session: session,
		metrics: m,
		tracing: tracing,
		logger:  logger,
	}
	svc.Bind(conn.Router())
	conn.OnStateChange(a.onConnectionState)
	return a
}

func (a *App) Run(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.hub.Run(ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.consume(ctx)
	}()

	if err := a.svc.Load(ctx); err != nil {
		a.logger.Warn("load local preferences failed; using defaults", zap.Error(err))
	}
	a.metrics.SetConnectionState(model.StateIdle)

	if a.session.HasToken() {
		if err := a.conn.Connect(ctx, a.session.Token()); err != nil {
			a.logger.Warn("initial connect failed", zap.Error(err))
		}
		a.poller.Start(ctx)
	}

	a.logger.Info("http server listening", zap.String("addr", a.cfg.HTTPAddr))
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// consume keeps the broker consumer running, reconnecting with backoff until
// ctx is done.
func (a *App) consume(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	op := func() error {
		err := a.consumer.Start(ctx)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	onRetry := func(err error, next time.Duration) {
		a.logger.Error("consumer stopped; retrying", zap.Error(err), zap.Duration("retry_in", next))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), onRetry); err != nil && ctx.Err() == nil {
		a.logger.Error("consumer gave up", zap.Error(err))
	}
}

func (a *App) onConnectionState(status model.ConnectionStatus) {
	a.metrics.SetConnectionState(status.State)
	a.hub.Publish(model.RoomConnection, EventConnectionState, status)

	switch status.State {
	case model.StateOpen:
		// pushes may have been missed while the socket was down
		if a.opened.Swap(true) {
			a.poller.Refresh()
		}
		a.poller.Start(context.Background())
	case model.StateExhausted:
		a.bridge.Warn(connectionLostMessage)
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("graceful shutdown started")
	shutdownErr := a.server.Shutdown(ctx)

	a.conn.Disconnect()
	a.poller.Stop()

	done := make(chan struct{})
	go func() {
		a.bridge.Wait()
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if err := a.tracing(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.logger.Info("graceful shutdown completed")
		return shutdownErr
	case <-ctx.Done():
		if shutdownErr != nil {
			return shutdownErr
		}
		return ctx.Err()
	}
}

func (a *App) Logger() *zap.Logger {
	return a.logger
}
