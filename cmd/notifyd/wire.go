//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"notifyd/internal/api"
	"notifyd/internal/app"
	"notifyd/internal/config"
	"notifyd/internal/credential"
	"notifyd/internal/effects"
	"notifyd/internal/http"
	"notifyd/internal/http/controller"
	"notifyd/internal/logging"
	"notifyd/internal/metrics"
	"notifyd/internal/queue/rabbitmq"
	"notifyd/internal/repository"
	"notifyd/internal/service/notify"
	"notifyd/internal/sse"
	"notifyd/internal/store"
	"notifyd/internal/ws"
)

func InitializeApp() (*app.App, func(), error) {
	wire.Build(
		config.New,
		logging.New,
		provideTracing,
		metrics.New,
		store.NewPreferenceStore,
		credential.NewVault,
		credential.NewSession,
		api.NewFromConfig,
		wire.Bind(new(repository.NotificationAPI), new(*api.Client)),
		sse.NewHub,
		wire.Bind(new(notify.Publisher), new(*sse.Hub)),
		provideToastQueue,
		provideBridge,
		wire.Bind(new(notify.SideEffects), new(*effects.Bridge)),
		wire.Bind(new(notify.UnreadGauge), new(*metrics.Metrics)),
		wire.Bind(new(ws.Instrumentation), new(*metrics.Metrics)),
		ws.NewRouter,
		wire.Bind(new(rabbitmq.Dispatcher), new(*ws.Router)),
		provideWSClient,
		wire.Bind(new(controller.Connection), new(*ws.Client)),
		notify.NewService,
		providePoller,
		rabbitmq.NewConsumer,
		rabbitmq.NewPublisher,
		controller.NewHandler,
		http.NewRouter,
		app.NewApp,
	)
	return &app.App{}, nil, nil
}
