package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/benmeehan/proximity-agent/pkg/identity"
	"github.com/benmeehan/proximity-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// StatsSource provides the ledger snapshot published by StatsService.
type StatsSource interface {
	Stats() models.LedgerStats
}

// HostMetrics samples host resource usage.
type HostMetrics interface {
	CollectAll(ctx context.Context) map[string]float64
}

// StatsService periodically publishes the outstanding notifications.
// Host metrics are attached when Host is set.
type StatsService struct {
	PubTopic   string
	Interval   time.Duration
	DeviceInfo identity.DeviceInfoInterface
	QOS        int
	MqttClient mqtt.MQTTClient
	Source     StatsSource
	Host       HostMetrics
	Logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStatsService initializes a new StatsService.
func NewStatsService(pubTopic string, interval time.Duration, deviceInfo identity.DeviceInfoInterface,
	qos int, mqttClient mqtt.MQTTClient, source StatsSource, logger zerolog.Logger) *StatsService {

	return &StatsService{
		PubTopic:   pubTopic,
		Interval:   interval,
		DeviceInfo: deviceInfo,
		QOS:        qos,
		MqttClient: mqttClient,
		Source:     source,
		Logger:     logger,
	}
}

// Start launches the stats loop in a separate goroutine.
func (s *StatsService) Start() error {
	if s.ctx != nil {
		s.Logger.Warn().Msg("StatsService is already running")
		return errors.New("stats service is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runStatsLoop()
	}()

	s.Logger.Info().Str("topic", s.PubTopic).Dur("interval", s.Interval).Msg("StatsService started successfully")
	return nil
}

// Stop gracefully stops the stats service.
func (s *StatsService) Stop() error {
	if s.ctx == nil {
		s.Logger.Warn().Msg("StatsService is not running")
		return errors.New("stats service is not running")
	}

	s.cancel()
	s.wg.Wait()

	s.ctx = nil
	s.cancel = nil

	s.Logger.Info().Msg("StatsService stopped successfully")
	return nil
}

func (s *StatsService) runStatsLoop() {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.publish(s.ctx); err != nil {
				s.Logger.Error().Err(err).Msg("Failed to publish notification stats")
			} else {
				s.Logger.Debug().Msg("Notification stats published successfully")
			}
		case <-s.ctx.Done():
			s.Logger.Info().Msg("StatsService stopping gracefully")
			return
		}
	}
}

func (s *StatsService) publish(ctx context.Context) error {
	stats := s.Source.Stats()
	stats.DeviceID = s.DeviceInfo.GetDeviceID()
	if s.Host != nil {
		stats.Host = s.Host.CollectAll(ctx)
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to serialize stats message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	topic := fmt.Sprintf("%s/%s", s.PubTopic, stats.DeviceID)
	return mqtt.WaitContext(ctx, s.MqttClient.Publish(topic, byte(s.QOS), false, payload))
}
