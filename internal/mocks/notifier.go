package mocks

import (
	"context"

	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockNotifier is a mock implementation of notifications.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Issue(ctx context.Context, n models.Notification) (string, error) {
	args := m.Called(ctx, n)
	return args.String(0), args.Error(1)
}

func (m *MockNotifier) Cancel(ctx context.Context, handle string) error {
	args := m.Called(ctx, handle)
	return args.Error(0)
}
