package models

import (
	"time"

	"github.com/benmeehan/proximity-agent/pkg/location"
)

// Marker is a user placed point of interest.
type Marker struct {
	ID          string              `json:"id"`
	Coordinate  location.Coordinate `json:"coordinate"`
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Images      []Image             `json:"images,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// DisplayContext returns the fields forwarded to the notification issuer.
func (m Marker) DisplayContext() DisplayContext {
	return DisplayContext{
		MarkerID:    m.ID,
		Title:       m.Title,
		Description: m.Description,
	}
}

// Image is a photo attached to a marker.
type Image struct {
	ID       string `json:"id"`
	MarkerID string `json:"marker_id"`
	URI      string `json:"uri"`
	Name     string `json:"name,omitempty"`
}

// NewMarker holds the fields required to create a marker.
type NewMarker struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
}

// Coordinate returns the coordinate of the new marker.
func (n NewMarker) Coordinate() location.Coordinate {
	return location.Coordinate{Latitude: n.Latitude, Longitude: n.Longitude}
}
