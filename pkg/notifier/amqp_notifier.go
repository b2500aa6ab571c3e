package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	eventNotify = "notify"
	eventCancel = "cancel"
)

// Channel is the subset of *amqp.Channel used by AMQPNotifier.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes notifications to a fanout exchange so that any
// number of consumers (push gateways, dashboards) can render them.
type AMQPNotifier struct {
	ch       Channel
	exchange string
	deviceID string
	logger   zerolog.Logger
	now      func() time.Time
}

// DialAMQP connects to url and opens a channel.
func DialAMQP(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	return conn, ch, nil
}

// NewAMQPNotifier declares exchange on ch and returns a notifier publishing to it.
func NewAMQPNotifier(ch Channel, exchange, deviceID string, logger zerolog.Logger) (*AMQPNotifier, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPNotifier{
		ch:       ch,
		exchange: exchange,
		deviceID: deviceID,
		logger:   logger,
		now:      time.Now,
	}, nil
}

type amqpEvent struct {
	Event     string `json:"event"`
	DeviceID  string `json:"device_id"`
	Handle    string `json:"notification_id"`
	MarkerID  string `json:"marker_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Body      string `json:"body,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (a *AMQPNotifier) Issue(ctx context.Context, n models.Notification) (string, error) {
	handle := uuid.NewString()
	err := a.publish(ctx, amqpEvent{
		Event:     eventNotify,
		DeviceID:  a.deviceID,
		Handle:    handle,
		MarkerID:  n.MarkerID,
		Title:     n.Title,
		Body:      n.Body,
		Timestamp: n.CreatedAt.Unix(),
	})
	if err != nil {
		return "", err
	}
	return handle, nil
}

func (a *AMQPNotifier) Cancel(ctx context.Context, handle string) error {
	return a.publish(ctx, amqpEvent{
		Event:     eventCancel,
		DeviceID:  a.deviceID,
		Handle:    handle,
		Timestamp: a.now().Unix(),
	})
}

// Close closes the channel. The connection is owned by the caller.
func (a *AMQPNotifier) Close() error {
	return a.ch.Close()
}

func (a *AMQPNotifier) publish(ctx context.Context, event amqpEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Event, err)
	}

	err = a.ch.PublishWithContext(ctx, a.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.Handle,
		Type:         event.Event,
		Body:         body,
	})
	if err != nil {
		a.logger.Error().Err(err).Str("exchange", a.exchange).Str("event", event.Event).Msg("Failed to publish notification event")
		return fmt.Errorf("publish %s event: %w", event.Event, err)
	}
	return nil
}
