package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/benmeehan/proximity-agent/internal/models"
)

const (
	notificationTitle = "You are close to a marker!"
	untitledMarker    = "untitled"
)

// Issuer creates a user visible notification and returns its handle.
type Issuer interface {
	Issue(ctx context.Context, n models.Notification) (string, error)
}

// Canceller withdraws a previously issued notification.
type Canceller interface {
	Cancel(ctx context.Context, handle string) error
}

// Notifier issues and cancels notifications.
type Notifier interface {
	Issuer
	Canceller
}

// BuildNotification renders the notification shown when the user approaches a marker.
func BuildNotification(display models.DisplayContext, now time.Time) models.Notification {
	title := display.Title
	if title == "" {
		title = untitledMarker
	}
	return models.Notification{
		MarkerID:    display.MarkerID,
		MarkerTitle: display.Title,
		Title:       notificationTitle,
		Body:        fmt.Sprintf("You are approaching %q. Tap to open.", title),
		CreatedAt:   now,
	}
}
