package queue

import (
	"context"
	"errors"
)

// Consumer feeds frames from a broker into the local message router.
type Consumer interface {
	Start(ctx context.Context) error
}

// Publisher injects frames into the broker; they come back through Consumer.
type Publisher interface {
	Publish(ctx context.Context, payload []byte, routingKey string) error
}

var ErrBrokerDisabled = errors.New("message broker not configured")
