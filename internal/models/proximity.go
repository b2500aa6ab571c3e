package models

import (
	"sort"
	"time"
)

// IDSet is a set of marker ids.
type IDSet map[string]struct{}

// NewIDSet builds a set from the given ids.
func NewIDSet(ids ...string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Minus returns the ids in s that are not in other.
func (s IDSet) Minus(other IDSet) IDSet {
	out := make(IDSet)
	for id := range s {
		if !other.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns an independent copy of the set.
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// ProximityUpdate is the result of processing one position sample.
type ProximityUpdate struct {
	Sample  PositionSample
	Entered IDSet
	Exited  IDSet
	Current IDSet
}

// Changed reports whether the update carries any enter or exit event.
func (u ProximityUpdate) Changed() bool {
	return len(u.Entered) > 0 || len(u.Exited) > 0
}

// ProximityEvent is the wire form of a ProximityUpdate published over MQTT.
type ProximityEvent struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Entered   []string  `json:"entered"`
	Exited    []string  `json:"exited"`
	Current   []string  `json:"current"`
}

// Event converts the update into its wire form.
func (u ProximityUpdate) Event(deviceID string) ProximityEvent {
	return ProximityEvent{
		DeviceID:  deviceID,
		Timestamp: u.Sample.Timestamp,
		Latitude:  u.Sample.Coordinate.Latitude,
		Longitude: u.Sample.Coordinate.Longitude,
		Entered:   u.Entered.Sorted(),
		Exited:    u.Exited.Sorted(),
		Current:   u.Current.Sorted(),
	}
}
