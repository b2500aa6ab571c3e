package notifier_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/benmeehan/proximity-agent/internal/mocks"
	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/benmeehan/proximity-agent/internal/notifications"
	"github.com/benmeehan/proximity-agent/pkg/notifier"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	_ notifications.Notifier = (*notifier.MQTTNotifier)(nil)
	_ notifications.Notifier = (*notifier.AMQPNotifier)(nil)
)

var testNotification = models.Notification{
	MarkerID:    "m1",
	MarkerTitle: "Fountain",
	Title:       "You are close to a marker!",
	Body:        `You are approaching "Fountain". Tap to open.`,
	CreatedAt:   time.Unix(1715003456, 0).UTC(),
}

func TestMQTTNotifier_Issue(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	var payload []byte
	client.On("Publish", "proximity/notifications/dev-1/notify", byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) { payload = args.Get(3).([]byte) }).
		Return(mocks.CompletedToken(nil)).Once()

	n := notifier.NewMQTTNotifier("proximity/notifications", "dev-1", 1, client, zerolog.Nop())
	handle, err := n.Issue(context.Background(), testNotification)
	require.NoError(t, err)
	assert.Len(t, handle, 36)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, handle, msg["notification_id"])
	assert.Equal(t, "m1", msg["marker_id"])
	assert.Equal(t, "You are close to a marker!", msg["title"])
	client.AssertExpectations(t)
}

func TestMQTTNotifier_IssueFailure(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(mocks.CompletedToken(errors.New("not connected")))

	n := notifier.NewMQTTNotifier("proximity/notifications", "dev-1", 0, client, zerolog.Nop())
	handle, err := n.Issue(context.Background(), testNotification)

	assert.Empty(t, handle)
	assert.ErrorContains(t, err, "not connected")
	client.AssertNumberOfCalls(t, "Publish", 1)
}

func TestMQTTNotifier_IssueRespectsContext(t *testing.T) {
	pending := new(mocks.MockToken)
	pending.On("Done").Return((<-chan struct{})(make(chan struct{})))

	client := new(mocks.MockMQTTClient)
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(pending)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	n := notifier.NewMQTTNotifier("proximity/notifications", "dev-1", 1, client, zerolog.Nop())
	_, err := n.Issue(ctx, testNotification)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMQTTNotifier_IssueTimeoutQueuesWithdrawal(t *testing.T) {
	// Setup
	pending := new(mocks.MockToken)
	pending.On("Done").Return((<-chan struct{})(make(chan struct{})))

	var notifyPayload, cancelPayload []byte
	client := new(mocks.MockMQTTClient)
	client.On("Publish", "proximity/notifications/dev-1/notify", byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) { notifyPayload = args.Get(3).([]byte) }).
		Return(pending).Once()
	client.On("Publish", "proximity/notifications/dev-1/cancel", byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) { cancelPayload = args.Get(3).([]byte) }).
		Return(pending).Once()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	n := notifier.NewMQTTNotifier("proximity/notifications", "dev-1", 1, client, zerolog.Nop())

	// Execute
	handle, err := n.Issue(ctx, testNotification)

	// Assert
	assert.Empty(t, handle)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	client.AssertExpectations(t)

	var issued map[string]any
	require.NoError(t, json.Unmarshal(notifyPayload, &issued))
	var withdrawn models.NotificationCancel
	require.NoError(t, json.Unmarshal(cancelPayload, &withdrawn))
	assert.Equal(t, issued["notification_id"], withdrawn.Handle)
}

func TestMQTTNotifier_RetriedIssueLeavesNoOrphans(t *testing.T) {
	// Setup
	pending := new(mocks.MockToken)
	pending.On("Done").Return((<-chan struct{})(make(chan struct{})))

	var notified, cancelled []string
	recordNotify := func(args mock.Arguments) {
		var msg map[string]any
		require.NoError(t, json.Unmarshal(args.Get(3).([]byte), &msg))
		notified = append(notified, msg["notification_id"].(string))
	}
	client := new(mocks.MockMQTTClient)
	client.On("Publish", "proximity/notifications/dev-1/notify", byte(1), false, mock.Anything).
		Run(recordNotify).Return(pending).Times(3)
	client.On("Publish", "proximity/notifications/dev-1/notify", byte(1), false, mock.Anything).
		Run(recordNotify).Return(mocks.CompletedToken(nil)).Once()
	client.On("Publish", "proximity/notifications/dev-1/cancel", byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) {
			var msg models.NotificationCancel
			require.NoError(t, json.Unmarshal(args.Get(3).([]byte), &msg))
			cancelled = append(cancelled, msg.Handle)
		}).
		Return(mocks.CompletedToken(nil))

	n := notifier.NewMQTTNotifier("proximity/notifications", "dev-1", 1, client, zerolog.Nop())

	// Execute
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_, err := n.Issue(ctx, testNotification)
		cancel()
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}
	handle, err := n.Issue(context.Background(), testNotification)
	require.NoError(t, err)
	require.NoError(t, n.Cancel(context.Background(), handle))

	// Assert
	assert.Len(t, notified, 4)
	assert.ElementsMatch(t, notified, cancelled)
}

func TestMQTTNotifier_Cancel(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	var payload []byte
	client.On("Publish", "proximity/notifications/dev-1/cancel", byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) { payload = args.Get(3).([]byte) }).
		Return(mocks.CompletedToken(nil)).Once()

	n := notifier.NewMQTTNotifier("proximity/notifications", "dev-1", 1, client, zerolog.Nop())
	require.NoError(t, n.Cancel(context.Background(), "handle-1"))

	var msg models.NotificationCancel
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "handle-1", msg.Handle)
	client.AssertExpectations(t)
}

func TestAMQPNotifier(t *testing.T) {
	ch := new(mocks.MockAMQPChannel)
	ch.On("ExchangeDeclare", "proximity.notifications", amqp.ExchangeFanout, true, false, false, false, amqp.Table(nil)).Return(nil).Once()

	var published []amqp.Publishing
	ch.On("PublishWithContext", mock.Anything, "proximity.notifications", "", false, false, mock.Anything).
		Run(func(args mock.Arguments) { published = append(published, args.Get(5).(amqp.Publishing)) }).
		Return(nil)
	ch.On("Close").Return(nil).Once()

	n, err := notifier.NewAMQPNotifier(ch, "proximity.notifications", "dev-1", zerolog.Nop())
	require.NoError(t, err)

	handle, err := n.Issue(context.Background(), testNotification)
	require.NoError(t, err)
	require.NoError(t, n.Cancel(context.Background(), handle))
	require.NoError(t, n.Close())

	require.Len(t, published, 2)
	assert.Equal(t, "notify", published[0].Type)
	assert.Equal(t, handle, published[0].MessageId)
	assert.Equal(t, "cancel", published[1].Type)

	var event map[string]any
	require.NoError(t, json.Unmarshal(published[0].Body, &event))
	assert.Equal(t, "dev-1", event["device_id"])
	assert.Equal(t, "m1", event["marker_id"])
	assert.Equal(t, float64(1715003456), event["timestamp"])
	ch.AssertExpectations(t)
}

func TestAMQPNotifier_DeclareFailure(t *testing.T) {
	ch := new(mocks.MockAMQPChannel)
	ch.On("ExchangeDeclare", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("access refused"))

	_, err := notifier.NewAMQPNotifier(ch, "proximity.notifications", "dev-1", zerolog.Nop())
	assert.ErrorContains(t, err, "access refused")
}

func TestAMQPNotifier_PublishFailure(t *testing.T) {
	ch := new(mocks.MockAMQPChannel)
	ch.On("ExchangeDeclare", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ch.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(amqp.ErrClosed)

	n, err := notifier.NewAMQPNotifier(ch, "proximity.notifications", "dev-1", zerolog.Nop())
	require.NoError(t, err)

	_, err = n.Issue(context.Background(), testNotification)
	assert.ErrorIs(t, err, amqp.ErrClosed)
}
