package mocks

import (
	"context"
	"io"

	"github.com/benmeehan/proximity-agent/pkg/s3"
	"github.com/stretchr/testify/mock"
)

// MockObjectStorage is a mock implementation of s3.ObjectStorageClient
type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) Connect(ctx context.Context, endpoint, accessKeyID, secretAccessKey string, useSSL bool) error {
	args := m.Called(ctx, endpoint, accessKeyID, secretAccessKey, useSSL)
	return args.Error(0)
}

func (m *MockObjectStorage) UploadImage(ctx context.Context, markerID, fileName string, content io.Reader, size int64) (s3.Object, error) {
	args := m.Called(ctx, markerID, fileName, content, size)
	return args.Get(0).(s3.Object), args.Error(1)
}

func (m *MockObjectStorage) PresignedURL(ctx context.Context, objectName string) (string, error) {
	args := m.Called(ctx, objectName)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStorage) RemoveObject(ctx context.Context, objectName string) error {
	args := m.Called(ctx, objectName)
	return args.Error(0)
}
