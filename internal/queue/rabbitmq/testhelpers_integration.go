//go:build integration

package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	brokerUser     = "notifyd"
	brokerPassword = "notifyd"
)

// setupRabbitMQContainer starts a broker with a dedicated user and returns its
// AMQP URL.
func setupRabbitMQContainer(t require.TestingT, ctx context.Context) (string, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.12-alpine",
		ExposedPorts: []string{"5672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": brokerUser,
			"RABBITMQ_DEFAULT_PASS": brokerPassword,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5672/tcp"),
			wait.ForLog("Server startup complete"),
		).WithDeadline(2 * time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	endpoint, err := container.PortEndpoint(ctx, "5672/tcp", "")
	require.NoError(t, err)

	return fmt.Sprintf("amqp://%s:%s@%s/", brokerUser, brokerPassword, endpoint), func() {
		_ = container.Terminate(ctx)
	}
}
