package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benmeehan/proximity-agent/internal/models"
	mqttClient "github.com/benmeehan/proximity-agent/pkg/mqtt"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const unsubscribeTimeout = 5 * time.Second

// MQTTSource receives positions published to a topic by a companion device.
type MQTTSource struct {
	topic  string
	qos    int
	client mqttClient.MQTTClient
	logger zerolog.Logger
	now    func() time.Time
}

// NewMQTTSource creates a source subscribed to topic.
func NewMQTTSource(topic string, qos int, client mqttClient.MQTTClient, logger zerolog.Logger) *MQTTSource {
	return &MQTTSource{
		topic:  topic,
		qos:    qos,
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

func (m *MQTTSource) Name() string { return "mqtt" }

// Run subscribes and forwards every valid position until ctx is done.
func (m *MQTTSource) Run(ctx context.Context, out chan<- models.PositionSample) error {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		sample, err := m.decode(msg.Payload())
		if err != nil {
			m.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Dropping invalid position message")
			return
		}
		send(ctx, out, sample)
	}

	token := m.client.Subscribe(m.topic, byte(m.qos), handler)
	if err := mqttClient.WaitContext(ctx, token); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", m.topic, err)
	}
	m.logger.Info().Str("topic", m.topic).Int("qos", m.qos).Msg("Subscribed to position topic")

	<-ctx.Done()

	token = m.client.Unsubscribe(m.topic)
	if !token.WaitTimeout(unsubscribeTimeout) {
		m.logger.Warn().Str("topic", m.topic).Msg("Timed out unsubscribing from position topic")
	} else if err := token.Error(); err != nil {
		m.logger.Warn().Err(err).Str("topic", m.topic).Msg("Failed to unsubscribe from position topic")
	}
	return nil
}

func (m *MQTTSource) decode(payload []byte) (models.PositionSample, error) {
	var msg models.PositionMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.PositionSample{}, fmt.Errorf("invalid position message: %w", err)
	}
	if msg.Timestamp < 0 {
		return models.PositionSample{}, fmt.Errorf("timestamp: must not be negative")
	}

	sample := msg.Sample(m.Name(), m.now())
	if err := sample.Coordinate.Validate(); err != nil {
		return models.PositionSample{}, err
	}
	return sample, nil
}
