package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"staybook/models"
	"staybook/services/booking"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const DefaultQueue = "reservation.events"

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher writes reservation events as persistent JSON messages to a
// durable queue. Each publish opens its own connection.
type RabbitPublisher struct {
	Queue  string
	Logger *zap.Logger

	open func() (channel, func(), error)
}

var _ booking.EventPublisher = (*RabbitPublisher)(nil)

func NewRabbitPublisher(url, queue string, logger *zap.Logger) *RabbitPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &RabbitPublisher{
		Queue:  queue,
		Logger: logger,
		open: func() (channel, func(), error) {
			conn, err := amqp.Dial(url)
			if err != nil {
				return nil, nil, fmt.Errorf("rabbitmq dial failed: %w", err)
			}
			ch, err := conn.Channel()
			if err != nil {
				_ = conn.Close()
				return nil, nil, fmt.Errorf("rabbitmq channel open failed: %w", err)
			}
			return ch, func() { _ = conn.Close() }, nil
		},
	}
}

func (p *RabbitPublisher) Publish(ctx context.Context, evt models.ReservationEvent) error {
	ch, done, err := p.open()
	if err != nil {
		p.Logger.Warn("event not published", zap.String("type", evt.Type), zap.Error(err))
		return err
	}
	defer done()
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq queue declare failed: %w", err)
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         evt.Type,
		MessageId:    evt.ReservationID + ":" + evt.Type + ":" + evt.OccurredAt,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.Queue, false, false, msg); err != nil {
		return fmt.Errorf("rabbitmq publish failed: %w", err)
	}
	p.Logger.Debug("event published", zap.String("type", evt.Type), zap.String("reservationId", evt.ReservationID))
	return nil
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.ReservationEvent) error { return nil }
