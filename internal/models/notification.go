package models

import "time"

// DisplayContext is the marker information shown in a notification.
type DisplayContext struct {
	MarkerID    string
	Title       string
	Description string
}

// NotificationRecord tracks the outstanding notification for one marker.
type NotificationRecord struct {
	MarkerID string    `json:"marker_id"`
	Handle   string    `json:"notification_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// Notification is the payload handed to a notification issuer.
type Notification struct {
	MarkerID    string    `json:"marker_id"`
	MarkerTitle string    `json:"marker_title,omitempty"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// NotificationCancel asks the receiving side to withdraw a notification.
type NotificationCancel struct {
	Handle    string    `json:"notification_id"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerStats summarises the outstanding notifications.
type LedgerStats struct {
	DeviceID    string               `json:"device_id,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
	TotalActive int                  `json:"total_active"`
	Active      []NotificationRecord `json:"active_notifications"`
	Host        map[string]float64   `json:"host_metrics,omitempty"`
}
