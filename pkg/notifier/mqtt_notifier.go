package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/benmeehan/proximity-agent/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MQTTNotifier hands notifications to the device UI over MQTT.
// Notifications go to <topic>/<device_id>/notify and withdrawals to
// <topic>/<device_id>/cancel.
type MQTTNotifier struct {
	notifyTopic string
	cancelTopic string
	qos         int
	client      mqtt.MQTTClient
	logger      zerolog.Logger
	now         func() time.Time
}

// NewMQTTNotifier creates a notifier publishing under topic for deviceID.
func NewMQTTNotifier(topic, deviceID string, qos int, client mqtt.MQTTClient, logger zerolog.Logger) *MQTTNotifier {
	base := fmt.Sprintf("%s/%s", topic, deviceID)
	return &MQTTNotifier{
		notifyTopic: base + "/notify",
		cancelTopic: base + "/cancel",
		qos:         qos,
		client:      client,
		logger:      logger,
		now:         time.Now,
	}
}

type notifyMessage struct {
	Handle string `json:"notification_id"`
	models.Notification
}

// Issue publishes the notification and returns its generated handle.
// If ctx ends before the broker acknowledges the publish, the client still
// holds the message, so a withdrawal for the same handle is queued behind it.
func (n *MQTTNotifier) Issue(ctx context.Context, notification models.Notification) (string, error) {
	handle := uuid.NewString()
	if err := n.publish(ctx, n.notifyTopic, notifyMessage{Handle: handle, Notification: notification}); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			n.withdraw(handle)
		}
		return "", err
	}

	n.logger.Debug().
		Str("topic", n.notifyTopic).
		Str("notification_id", handle).
		Str("marker_id", notification.MarkerID).
		Msg("Notification published")
	return handle, nil
}

// Cancel publishes a withdrawal for handle.
func (n *MQTTNotifier) Cancel(ctx context.Context, handle string) error {
	if err := n.publish(ctx, n.cancelTopic, models.NotificationCancel{Handle: handle, CreatedAt: n.now()}); err != nil {
		return err
	}

	n.logger.Debug().Str("topic", n.cancelTopic).Str("notification_id", handle).Msg("Cancellation published")
	return nil
}

// withdraw queues a cancellation for an abandoned handle without waiting
// for the broker.
func (n *MQTTNotifier) withdraw(handle string) {
	payload, err := json.Marshal(models.NotificationCancel{Handle: handle, CreatedAt: n.now()})
	if err != nil {
		n.logger.Error().Err(err).Str("notification_id", handle).Msg("Failed to serialize withdrawal")
		return
	}
	n.client.Publish(n.cancelTopic, byte(n.qos), false, payload)
	n.logger.Warn().
		Str("topic", n.cancelTopic).
		Str("notification_id", handle).
		Msg("Notification publish timed out, withdrawal queued")
}

func (n *MQTTNotifier) publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	token := n.client.Publish(topic, byte(n.qos), false, payload)
	if err := mqtt.WaitContext(ctx, token); err != nil {
		n.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish message to MQTT")
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}
