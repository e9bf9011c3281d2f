package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"notifyd/internal/config"
	"notifyd/internal/domain"
	"notifyd/internal/queue"
	"notifyd/internal/ws"
)

type noopConsumer struct{}

func (n *noopConsumer) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Dispatcher is the router frames are delivered to.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg ws.Message) int
}

type Consumer struct {
	url         string
	router      Dispatcher
	instr       ws.Instrumentation
	logger      *zap.Logger
	exchange    string
	queue       string
	routingKey  string
	consumerTag string
}

func NewConsumer(cfg *config.Config, router Dispatcher, instr ws.Instrumentation, logger *zap.Logger) queue.Consumer {
	if cfg.RabbitMQURL == "" {
		return &noopConsumer{}
	}
	return &Consumer{
		url:         cfg.RabbitMQURL,
		router:      router,
		instr:       instr,
		logger:      logger,
		exchange:    cfg.RabbitExchange,
		queue:       cfg.RabbitQueue,
		routingKey:  cfg.RabbitRoutingKey,
		consumerTag: cfg.RabbitConsumerTag,
	}
}

func (r *Consumer) Start(ctx context.Context) error {
	ctx, span := otel.Tracer("rabbitmq").Start(ctx, "rabbitmq.consume_loop")
	span.SetAttributes(
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.destination", r.exchange),
		attribute.String("messaging.destination_kind", "exchange"),
		attribute.String("messaging.rabbitmq.routing_key", r.routingKey),
	)
	defer span.End()

	conn, err := amqp.Dial(r.url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "channel failed")
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "qos failed")
		return fmt.Errorf("rabbitmq qos: %w", err)
	}

	if err := declareExchange(ch, r.exchange); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange declare failed")
		return err
	}

	queueInfo, err := ch.QueueDeclare(
		r.queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "queue declare failed")
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	if err := ch.QueueBind(queueInfo.Name, r.routingKey, r.exchange, false, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "queue bind failed")
		return fmt.Errorf("rabbitmq queue bind: %w", err)
	}

	deliveries, err := ch.Consume(
		queueInfo.Name,
		r.consumerTag,
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "consume failed")
		return fmt.Errorf("rabbitmq consume: %w", err)
	}

	r.logger.Info("RabbitMQ consumer started",
		zap.String("exchange", r.exchange),
		zap.String("queue", queueInfo.Name),
		zap.String("routing_key", r.routingKey),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-deliveries:
			if !ok {
				span.SetStatus(codes.Error, "deliveries closed")
				return errors.New("rabbitmq deliveries closed")
			}
			if err := r.handleMessage(ctx, msg); err != nil {
				span.RecordError(err)
				return err
			}
		}
	}
}

// handleMessage acks every delivery it can make sense of or has to drop;
// frames are not retried because handlers are best effort.
func (r *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) error {
	ctx = extractTrace(ctx, msg.Headers)
	ctx, span := otel.Tracer("rabbitmq").Start(ctx, "rabbitmq.handle_message")
	span.SetAttributes(
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.destination", r.exchange),
		attribute.String("messaging.destination_kind", "exchange"),
		attribute.String("messaging.rabbitmq.routing_key", msg.RoutingKey),
	)
	defer span.End()

	frame, err := ws.Decode(msg.Body)
	switch {
	case errors.Is(err, ws.ErrUnknownType):
		r.instr.FrameDropped("unknown_type")
		r.logger.Debug("rabbitmq unknown frame type", zap.String("type", string(frame.Type)))
		return msg.Ack(false)
	case err != nil:
		r.instr.FrameDropped("malformed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid frame")
		r.logger.Error("rabbitmq invalid frame", zap.Error(err))
		return msg.Ack(false)
	}

	if p, ok := frame.Payload.(ws.NotificationPayload); ok {
		n := p.Notification
		if n.ID == 0 || n.Title == "" {
			r.instr.FrameDropped("missing_fields")
			span.SetStatus(codes.Error, "missing required fields")
			r.logger.Warn("rabbitmq missing required fields",
				zap.Int64("id", n.ID),
				zap.String("type", n.Type),
				zap.String("title", n.Title),
			)
			return msg.Ack(false)
		}
		if !domain.IsValidNotificationType(n.Type) {
			r.instr.FrameDropped("invalid_type")
			span.RecordError(domain.ErrInvalidNotificationType)
			span.SetStatus(codes.Error, "invalid notification type")
			r.logger.Warn("rabbitmq dropped frame", zap.String("type", n.Type), zap.Error(domain.ErrInvalidNotificationType))
			return msg.Ack(false)
		}
	}

	r.instr.FrameReceived(string(frame.Type))
	handled := r.router.Dispatch(ctx, frame)
	span.SetAttributes(attribute.Int("notifyd.handlers", handled))
	return msg.Ack(false)
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("rabbitmq exchange declare: %w", err)
	}
	return nil
}
