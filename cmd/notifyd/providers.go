package main

import (
	"context"

	"go.uber.org/zap"
	"notifyd/internal/config"
	"notifyd/internal/effects"
	"notifyd/internal/metrics"
	"notifyd/internal/service/notify"
	"notifyd/internal/sse"
	syncer "notifyd/internal/sync"
	"notifyd/internal/telemetry"
	"notifyd/internal/ws"
)

func provideTracing(cfg *config.Config) (telemetry.Shutdown, error) {
	return telemetry.Init(context.Background(), cfg)
}

func provideToastQueue(cfg *config.Config, hub *sse.Hub) *effects.ToastQueue {
	return effects.NewToastQueue(cfg.ToastTTL, hub)
}

func provideBridge(cfg *config.Config, toasts *effects.ToastQueue, m *metrics.Metrics, logger *zap.Logger) *effects.Bridge {
	return effects.NewBridge(
		effects.NewCommandDesktop(cfg.DesktopCommand),
		effects.NewCommandPlayer(cfg.AudioCommand, cfg.SoundFile, cfg.SoundVolume),
		toasts,
		m,
		logger,
	)
}

func provideWSClient(cfg *config.Config, router *ws.Router, m *metrics.Metrics, logger *zap.Logger) *ws.Client {
	return ws.NewClient(ws.Options{
		BaseURL:              cfg.WSBase,
		ReconnectInterval:    cfg.ReconnectInterval,
		MaxReconnectInterval: cfg.MaxReconnectInterval,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		HeartbeatInterval:    cfg.HeartbeatInterval,
	}, router, logger, ws.WithInstrumentation(m))
}

func providePoller(cfg *config.Config, svc *notify.Service, logger *zap.Logger) *syncer.Poller {
	return syncer.New(svc, cfg.PollInterval, cfg.PageSize, logger)
}
