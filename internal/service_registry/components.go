package service_registry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/benmeehan/proximity-agent/internal/api"
	"github.com/benmeehan/proximity-agent/internal/metrics_collectors"
	"github.com/benmeehan/proximity-agent/internal/notifications"
	"github.com/benmeehan/proximity-agent/internal/proximity"
	"github.com/benmeehan/proximity-agent/internal/registry"
	"github.com/benmeehan/proximity-agent/internal/services"
	"github.com/benmeehan/proximity-agent/internal/sources"
	"github.com/benmeehan/proximity-agent/internal/store"
	"github.com/benmeehan/proximity-agent/internal/utils"
	"github.com/benmeehan/proximity-agent/pkg/identity"
	"github.com/benmeehan/proximity-agent/pkg/location"
	"github.com/benmeehan/proximity-agent/pkg/notifier"
)

const eventBuffer = 16

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// RegisterServices builds the proximity core from configuration and registers
// the enabled services in start order.
func (sr *ServiceRegistry) RegisterServices(ctx context.Context, config *utils.Config, deviceInfo identity.DeviceInfoInterface) error {
	err := sr.registerServices(ctx, config, deviceInfo)
	if err != nil {
		sr.closeResources()
	}
	return err
}

func (sr *ServiceRegistry) registerServices(ctx context.Context, config *utils.Config, deviceInfo identity.DeviceInfoInterface) error {
	checks := make(map[string]api.HealthCheck)
	if sr.mqttClient != nil {
		checks["mqtt"] = func(context.Context) error {
			if !sr.mqttClient.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}
	}

	markerStore, err := store.Open(ctx, config, sr.fileClient, sr.logger)
	if err != nil {
		return fmt.Errorf("failed to open marker store: %w", err)
	}
	sr.addCloser("marker store", markerStore)
	if pinger, ok := markerStore.(interface{ Ping(context.Context) error }); ok {
		checks["store"] = pinger.Ping
	}

	if err := sr.seedMarkers(ctx, config, markerStore); err != nil {
		return err
	}

	transport, err := sr.newNotifier(config, deviceInfo.GetDeviceID(), checks)
	if err != nil {
		return err
	}

	gate := notifications.NewPermissionGate(transport, config.Notifications.Granted)
	ledger := notifications.NewLedger(gate, gate, sr.logger,
		notifications.WithWorkers(config.Notifications.Workers),
		notifications.WithCallTimeout(config.Notifications.CallTimeout),
	)
	sr.addCloser("notification ledger", closerFunc(func() error { ledger.Close(); return nil }))

	monitor := proximity.NewMonitor(proximity.NewTracker(config.Proximity.ThresholdMeters), ledger, sr.logger)

	source, err := sr.newPositionSource(config)
	if err != nil {
		return err
	}

	proximityService := services.NewProximityService(
		services.ProximityConfig{
			UpdateTopic:     config.Proximity.UpdateTopic,
			QOS:             config.Proximity.QOS,
			CleanupInterval: config.Proximity.CleanupInterval,
			MaxAge:          config.Proximity.NotificationMaxAge,
		},
		source,
		markerStore,
		monitor,
		sr.mqttClient,
		deviceInfo,
		sr.logger,
	)

	var hostMetrics *metrics_collectors.MetricsRegistry
	if config.Stats.Enabled && len(config.Stats.HostMetrics) > 0 {
		hostMetrics, err = metrics_collectors.NewHostMetrics(config.Stats.HostMetrics, config.Stats.DiskPath, sr.logger)
		if err != nil {
			return err
		}
	}

	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() registry.Service
	}{
		{
			name:        "proximity",
			enabled:     true,
			constructor: func() registry.Service { return proximityService },
		},
		{
			name:    "stats",
			enabled: config.Stats.Enabled,
			constructor: func() registry.Service {
				statsService := services.NewStatsService(
					config.Stats.Topic,
					config.Stats.Interval,
					deviceInfo,
					config.Stats.QOS,
					sr.mqttClient,
					ledger,
					sr.logger,
				)
				if hostMetrics != nil {
					statsService.Host = hostMetrics
				}
				return statsService
			},
		},
		{
			name:    "api",
			enabled: config.API.Enabled,
			constructor: func() registry.Service {
				hub := api.NewEventHub(eventBuffer, sr.logger)
				proximityService.OnChange(hub.Publish)
				sr.addCloser("event hub", hub)

				handler := api.NewHandler(markerStore, ledger, gate, proximityService, checks, deviceInfo.GetDeviceID(), sr.logger).
					WithEvents(hub)
				return services.NewAPIService(config.API.Address, handler, sr.logger)
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			sr.RegisterService(svc.name, svc.constructor())
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}

func (sr *ServiceRegistry) seedMarkers(ctx context.Context, config *utils.Config, markerStore store.MarkerStore) error {
	if config.Store.SeedGeoJSON == "" {
		return nil
	}

	existing, err := markerStore.ListMarkers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list markers: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	data, err := sr.fileClient.ReadFileRaw(config.Store.SeedGeoJSON)
	if errors.Is(err, os.ErrNotExist) {
		sr.logger.Warn().Str("file", config.Store.SeedGeoJSON).Msg("Seed file not found, starting with no markers")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read seed markers: %w", err)
	}

	created, err := store.ImportGeoJSON(ctx, markerStore, data)
	if err != nil {
		return fmt.Errorf("failed to seed markers: %w", err)
	}
	sr.logger.Info().Int("markers", len(created)).Str("file", config.Store.SeedGeoJSON).Msg("Seeded marker store")
	return nil
}

func (sr *ServiceRegistry) newNotifier(config *utils.Config, deviceID string, checks map[string]api.HealthCheck) (notifications.Notifier, error) {
	switch config.Notifications.Transport {
	case utils.TransportMQTT:
		if sr.mqttClient == nil {
			return nil, errors.New("mqtt notification transport requires a broker connection")
		}
		return notifier.NewMQTTNotifier(config.Notifications.Topic, deviceID, config.Notifications.QOS, sr.mqttClient, sr.logger), nil

	case utils.TransportAMQP:
		conn, ch, err := notifier.DialAMQP(config.Notifications.AMQPURL)
		if err != nil {
			return nil, err
		}
		sr.addCloser("amqp connection", conn)
		checks["amqp"] = func(context.Context) error {
			if conn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}

		n, err := notifier.NewAMQPNotifier(ch, config.Notifications.AMQPExchange, deviceID, sr.logger)
		if err != nil {
			ch.Close()
			return nil, err
		}
		sr.addCloser("amqp channel", n)
		return n, nil

	default:
		return nil, fmt.Errorf("unknown notification transport %q", config.Notifications.Transport)
	}
}

func (sr *ServiceRegistry) newPositionSource(config *utils.Config) (sources.PositionSource, error) {
	switch config.Location.Source {
	case utils.SourceSensor:
		provider := location.NewDeviceSensorProvider(config.Location.GPSDevicePort, config.Location.GPSDeviceBaudRate)
		return sources.NewPollingSource(provider, config.Location.Interval, sr.logger), nil

	case utils.SourceGoogle:
		provider, err := location.NewGoogleGeolocationProvider(config.Location.MapsAPIKey, config.Location.ModemIndex)
		if err != nil {
			sr.logger.Error().Err(err).Msg("failed to create Google Geolocation provider")
			return nil, err
		}
		return sources.NewPollingSource(provider, config.Location.Interval, sr.logger), nil

	case utils.SourceMQTT:
		if sr.mqttClient == nil {
			return nil, errors.New("mqtt position source requires a broker connection")
		}
		return sources.NewMQTTSource(config.Location.Topic, config.Location.QOS, sr.mqttClient, sr.logger), nil

	default:
		return nil, fmt.Errorf("unknown position source %q", config.Location.Source)
	}
}
