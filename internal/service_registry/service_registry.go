package service_registry

import (
	"errors"
	"fmt"
	"io"

	"github.com/benmeehan/proximity-agent/internal/registry"
	"github.com/benmeehan/proximity-agent/pkg/file"
	"github.com/benmeehan/proximity-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	closers     []namedCloser               // Shared resources released after every service stopped
	mqttClient  mqtt.MQTTClient
	fileClient  file.FileOperations
	logger      zerolog.Logger
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// NewServiceRegistry initializes a new service registry with dependencies.
// mqttClient may be nil when no configured component uses the broker.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, fileClient file.FileOperations, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]registry.Service),
		mqttClient: mqttClient,
		fileClient: fileClient,
		logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.logger.Info().Msgf("Registered service: %s", name)
}

// Services returns the registered service names in start order.
func (sr *ServiceRegistry) Services() []string {
	return append([]string(nil), sr.serviceKeys...)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services and
// releases shared resources.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			sr.closeResources()
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order, then releases shared resources.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	stopErrors = append(stopErrors, sr.closeResources()...)

	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

func (sr *ServiceRegistry) addCloser(name string, c io.Closer) {
	sr.closers = append(sr.closers, namedCloser{name: name, closer: c})
}

func (sr *ServiceRegistry) closeResources() []error {
	var errs []error
	for i := len(sr.closers) - 1; i >= 0; i-- {
		c := sr.closers[i]
		if err := c.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", c.name, err))
		}
	}
	sr.closers = nil
	return errs
}
