package services_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/benmeehan/proximity-agent/internal/mocks"
	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/benmeehan/proximity-agent/internal/services"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixedStats models.LedgerStats

func (f fixedStats) Stats() models.LedgerStats { return models.LedgerStats(f) }

func TestStatsService_Start_Success(t *testing.T) {
	// Setup
	mockDeviceInfo := new(mocks.MockDeviceInfo)
	mockMQTTClient := new(mocks.MockMQTTClient)
	mockDeviceInfo.On("GetDeviceID").Return("test-device-id")

	s := services.NewStatsService("stats", time.Second, mockDeviceInfo, 1, mockMQTTClient, fixedStats{}, zerolog.Nop())

	// Execute
	err := s.Start()

	// Assert
	assert.NoError(t, err)

	err = s.Start()
	assert.EqualError(t, err, "stats service is already running")

	// Cleanup
	assert.NoError(t, s.Stop())
	assert.EqualError(t, s.Stop(), "stats service is not running")
}

func TestStatsService_PublishesStats(t *testing.T) {
	// Setup
	mockDeviceInfo := new(mocks.MockDeviceInfo)
	mockMQTTClient := new(mocks.MockMQTTClient)
	mockDeviceInfo.On("GetDeviceID").Return("test-device-id")

	payloads := make(chan []byte, 8)
	mockMQTTClient.On("Publish", "stats/test-device-id", byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) {
			select {
			case payloads <- args.Get(3).([]byte):
			default:
			}
		}).
		Return(mocks.CompletedToken(nil))

	source := fixedStats{
		TotalActive: 1,
		Active:      []models.NotificationRecord{{MarkerID: "m1", Handle: "h1"}},
	}
	s := services.NewStatsService("stats", 10*time.Millisecond, mockDeviceInfo, 1, mockMQTTClient, source, zerolog.Nop())

	// Execute
	require.NoError(t, s.Start())
	defer s.Stop()

	// Assert
	select {
	case payload := <-payloads:
		var stats models.LedgerStats
		require.NoError(t, json.Unmarshal(payload, &stats))
		assert.Equal(t, "test-device-id", stats.DeviceID)
		assert.Equal(t, 1, stats.TotalActive)
		assert.Equal(t, "m1", stats.Active[0].MarkerID)
	case <-time.After(time.Second):
		t.Fatal("stats were not published")
	}
}

type fixedHost map[string]float64

func (f fixedHost) CollectAll(context.Context) map[string]float64 { return f }

func TestStatsService_AttachesHostMetrics(t *testing.T) {
	// Setup
	mockDeviceInfo := new(mocks.MockDeviceInfo)
	mockMQTTClient := new(mocks.MockMQTTClient)
	mockDeviceInfo.On("GetDeviceID").Return("test-device-id")

	payloads := make(chan []byte, 8)
	mockMQTTClient.On("Publish", "stats/test-device-id", byte(0), false, mock.Anything).
		Run(func(args mock.Arguments) {
			select {
			case payloads <- args.Get(3).([]byte):
			default:
			}
		}).
		Return(mocks.CompletedToken(nil))

	s := services.NewStatsService("stats", 10*time.Millisecond, mockDeviceInfo, 0, mockMQTTClient, fixedStats{}, zerolog.Nop())
	s.Host = fixedHost{"memory": 37.5}

	// Execute
	require.NoError(t, s.Start())
	defer s.Stop()

	// Assert
	select {
	case payload := <-payloads:
		var stats models.LedgerStats
		require.NoError(t, json.Unmarshal(payload, &stats))
		assert.Equal(t, map[string]float64{"memory": 37.5}, stats.Host)
	case <-time.After(time.Second):
		t.Fatal("stats were not published")
	}
}
