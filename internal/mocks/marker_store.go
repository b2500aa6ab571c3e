package mocks

import (
	"context"

	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockMarkerStore is a mock implementation of store.MarkerStore
type MockMarkerStore struct {
	mock.Mock
}

func (m *MockMarkerStore) ListMarkers(ctx context.Context) ([]models.Marker, error) {
	args := m.Called(ctx)
	markers, _ := args.Get(0).([]models.Marker)
	return markers, args.Error(1)
}

func (m *MockMarkerStore) GetMarker(ctx context.Context, id string) (models.Marker, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Marker), args.Error(1)
}

func (m *MockMarkerStore) AddMarker(ctx context.Context, in models.NewMarker) (models.Marker, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(models.Marker), args.Error(1)
}

func (m *MockMarkerStore) DeleteMarker(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockMarkerStore) AddImage(ctx context.Context, image models.Image) (models.Image, error) {
	args := m.Called(ctx, image)
	return args.Get(0).(models.Image), args.Error(1)
}

func (m *MockMarkerStore) DeleteImage(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockMarkerStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
