package models

import (
	"time"

	"github.com/benmeehan/proximity-agent/pkg/location"
)

// PositionSample is a single fix from the position stream.
type PositionSample struct {
	Coordinate location.Coordinate `json:"coordinate"`
	Accuracy   float64             `json:"accuracy,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
	Source     string              `json:"source,omitempty"`
}

// PositionMessage is the wire form of a position published over MQTT or posted to the API.
type PositionMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Timestamp int64   `json:"timestamp"` // Unix seconds
}

// Sample converts the message into a PositionSample. A zero timestamp is replaced by now.
func (m PositionMessage) Sample(source string, now time.Time) PositionSample {
	ts := now
	if m.Timestamp > 0 {
		ts = time.Unix(m.Timestamp, 0)
	}
	return PositionSample{
		Coordinate: location.Coordinate{Latitude: m.Latitude, Longitude: m.Longitude},
		Accuracy:   m.Accuracy,
		Timestamp:  ts,
		Source:     source,
	}
}
