package mocks

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"
)

// MockAMQPChannel is a mock implementation of notifier.Channel
type MockAMQPChannel struct {
	mock.Mock
}

func (m *MockAMQPChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	ret := m.Called(name, kind, durable, autoDelete, internal, noWait, args)
	return ret.Error(0)
}

func (m *MockAMQPChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	ret := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return ret.Error(0)
}

func (m *MockAMQPChannel) Close() error {
	ret := m.Called()
	return ret.Error(0)
}
