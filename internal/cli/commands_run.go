package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/proximity-agent/internal/service_registry"
	"github.com/benmeehan/proximity-agent/pkg/identity"
	"github.com/benmeehan/proximity-agent/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRunCommand(deps Dependencies, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the proximity agent and block until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd.Context(), deps, flags)
		},
	}
}

func runAgent(ctx context.Context, deps Dependencies, flags *globalFlags) error {
	config, err := loadConfig(deps, flags)
	if err != nil {
		return err
	}

	log, err := newLogger(config, os.Stdout)
	if err != nil {
		return err
	}

	deviceInfo := identity.NewDeviceInfo(config.Identity.DeviceFile, deps.FileClient)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		log.Error().Err(err).Msg("Failed to load device information")
		return err
	}
	log = log.With().Str("device_id", deviceInfo.GetDeviceID()).Logger()

	var mqttClient mqtt.MQTTClient
	if config.NeedsMQTT() {
		// Generate a unique MQTT Client ID by appending a UUID
		clientID := config.MQTT.ClientID + "-" + uuid.New().String()
		log.Info().Msgf("Using MQTT Client ID: %s", clientID)

		mqttService := mqtt.NewMqttService(deps.FileClient, log)
		err = mqttService.Initialize(mqtt.Options{
			Broker:        config.MQTT.Broker,
			ClientID:      clientID,
			CACertificate: config.MQTT.CACertificate,
			Username:      config.MQTT.Username,
			Password:      config.MQTT.Password,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize MQTT connection")
			return err
		}
		defer mqttService.Disconnect(250)
		mqttClient = mqttService
	}

	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, deps.FileClient, log)
	if err := serviceRegistry.RegisterServices(ctx, config, deviceInfo); err != nil {
		log.Error().Err(err).Msg("Failed to register services")
		return err
	}

	if err := serviceRegistry.StartServices(); err != nil {
		return fmt.Errorf("failed to start services: %w", err)
	}
	log.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	log.Info().Msg("Shutting down gracefully...")
	return serviceRegistry.StopServices()
}
