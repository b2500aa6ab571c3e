package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/benmeehan/proximity-agent/internal/proximity"
	"github.com/benmeehan/proximity-agent/internal/sources"
	"github.com/benmeehan/proximity-agent/internal/store"
	"github.com/benmeehan/proximity-agent/pkg/identity"
	"github.com/benmeehan/proximity-agent/pkg/location"
	"github.com/benmeehan/proximity-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

const (
	sampleBufferSize = 16
	publishTimeout   = 10 * time.Second
	clearTimeout     = 30 * time.Second
)

// ProximityConfig holds the ProximityService settings.
type ProximityConfig struct {
	UpdateTopic     string        // Empty disables publishing of proximity updates
	QOS             int           // MQTT QoS level for proximity updates
	CleanupInterval time.Duration // How often stale notifications are withdrawn
	MaxAge          time.Duration // Age after which a notification is stale
}

// ProximityService feeds position samples from a source through the proximity
// monitor and publishes the resulting enter/exit events.
type ProximityService struct {
	config ProximityConfig

	// Dependencies
	source     sources.PositionSource
	store      store.MarkerStore
	monitor    *proximity.Monitor
	mqttClient mqtt.MQTTClient
	deviceInfo identity.DeviceInfoInterface
	logger     zerolog.Logger
	listeners  []func(models.ProximityEvent)

	// Serializes marker snapshot and monitor update per sample
	processMu sync.Mutex

	// Internal state management
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	samples chan models.PositionSample
	running bool
}

// NewProximityService creates a new ProximityService. mqttClient may be nil
// when no update topic is configured.
func NewProximityService(config ProximityConfig, source sources.PositionSource, markerStore store.MarkerStore,
	monitor *proximity.Monitor, mqttClient mqtt.MQTTClient, deviceInfo identity.DeviceInfoInterface, logger zerolog.Logger) *ProximityService {
	return &ProximityService{
		config:     config,
		source:     source,
		store:      markerStore,
		monitor:    monitor,
		mqttClient: mqttClient,
		deviceInfo: deviceInfo,
		logger:     logger,
	}
}

// OnChange registers fn to receive every enter/exit event. It must be called
// before Start and fn must not block.
func (p *ProximityService) OnChange(fn func(models.ProximityEvent)) {
	p.listeners = append(p.listeners, fn)
}

// Start launches the position stream, the sample consumer and the cleanup loop.
func (p *ProximityService) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Warn().Msg("ProximityService is already running")
		return errors.New("proximity service is already running")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.samples = make(chan models.PositionSample, sampleBufferSize)
	p.running = true

	p.wg.Add(2)
	go p.runSource()
	go p.consumeSamples()

	if p.config.CleanupInterval > 0 && p.config.MaxAge > 0 {
		p.wg.Add(1)
		go p.runCleanup()
	}

	p.logger.Info().
		Str("source", p.source.Name()).
		Float64("threshold_meters", p.monitor.Threshold()).
		Str("update_topic", p.config.UpdateTopic).
		Msg("ProximityService started")
	return nil
}

// Stop halts the stream and withdraws every outstanding notification.
func (p *ProximityService) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		p.logger.Warn().Msg("ProximityService is not running")
		return errors.New("proximity service is not running")
	}

	p.cancel()
	p.wg.Wait()
	p.running = false

	ctx, cancel := context.WithTimeout(context.Background(), clearTimeout)
	defer cancel()

	if err := p.monitor.ClearAll(ctx); err != nil {
		p.logger.Error().Err(err).Msg("Failed to clear notifications on stop")
		return err
	}

	p.logger.Info().Msg("ProximityService stopped")
	return nil
}

// Running reports whether the service has been started.
func (p *ProximityService) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// HandleSample processes one sample on the same serialized path as the stream.
func (p *ProximityService) HandleSample(ctx context.Context, sample models.PositionSample) (models.ProximityUpdate, error) {
	p.processMu.Lock()
	defer p.processMu.Unlock()

	markers, err := p.store.ListMarkers(ctx)
	if err != nil {
		return models.ProximityUpdate{}, fmt.Errorf("failed to load markers: %w", err)
	}

	update, err := p.monitor.Update(ctx, sample, markers)
	if proximity.IsRejected(err) {
		return update, err
	}

	if update.Changed() {
		p.logger.Info().
			Strs("entered", update.Entered.Sorted()).
			Strs("exited", update.Exited.Sorted()).
			Int("nearby", len(update.Current)).
			Msg("Proximity changed")
		event := update.Event(p.deviceInfo.GetDeviceID())
		for _, fn := range p.listeners {
			fn(event)
		}
		if pubErr := p.publishUpdate(ctx, event); pubErr != nil {
			p.logger.Error().Err(pubErr).Msg("Failed to publish proximity update")
		}
	}
	return update, err
}

func (p *ProximityService) runSource() {
	defer p.wg.Done()

	err := p.source.Run(p.ctx, p.samples)
	switch {
	case errors.Is(err, location.ErrPermissionDenied):
		p.logger.Error().Err(err).Str("source", p.source.Name()).Msg("Position permission denied, stream halted")
	case err != nil:
		p.logger.Error().Err(err).Str("source", p.source.Name()).Msg("Position stream failed")
	default:
		p.logger.Info().Str("source", p.source.Name()).Msg("Position stream ended")
	}
}

func (p *ProximityService) consumeSamples() {
	defer p.wg.Done()

	for {
		select {
		case sample := <-p.samples:
			if _, err := p.HandleSample(p.ctx, sample); err != nil {
				p.logger.Warn().Err(err).Str("position", sample.Coordinate.String()).Msg("Failed to process position sample")
			}
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *ProximityService) runCleanup() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := p.monitor.Cleanup(p.ctx, p.config.MaxAge); err != nil {
				p.logger.Warn().Err(err).Msg("Failed to clean up old notifications")
			}
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *ProximityService) publishUpdate(ctx context.Context, event models.ProximityEvent) error {
	if p.config.UpdateTopic == "" || p.mqttClient == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize proximity update: %w", err)
	}

	topic := fmt.Sprintf("%s/%s", p.config.UpdateTopic, event.DeviceID)
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	token := p.mqttClient.Publish(topic, byte(p.config.QOS), false, payload)
	if err := mqtt.WaitContext(ctx, token); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}
