package proximity

import (
	"testing"
	"time"

	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/benmeehan/proximity-agent/pkg/location"
	"github.com/stretchr/testify/assert"
)

var (
	markerA = models.Marker{ID: "a", Title: "Fountain", Coordinate: location.Coordinate{Latitude: 58.00937, Longitude: 56.20786}}
	markerB = models.Marker{ID: "b", Title: "Library", Coordinate: location.Coordinate{Latitude: 58.02000, Longitude: 56.20786}}

	nearA = sampleAt(58.00967, 56.20786) // ~33 m from a
	farA  = sampleAt(58.01117, 56.20786) // ~200 m from a
	nearB = sampleAt(58.02010, 56.20786) // ~11 m from b
)

func sampleAt(lat, lon float64) models.PositionSample {
	return models.PositionSample{
		Coordinate: location.Coordinate{Latitude: lat, Longitude: lon},
		Timestamp:  time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTracker_FirstUpdateReportsAllNearbyAsEntered(t *testing.T) {
	tracker := NewTracker(location.DefaultThresholdMeters)

	update := tracker.Update(nearA, []models.Marker{markerA, markerB})

	assert.Equal(t, []string{"a"}, update.Entered.Sorted())
	assert.Empty(t, update.Exited)
	assert.Equal(t, []string{"a"}, update.Current.Sorted())
	assert.True(t, update.Changed())
}

func TestTracker_EnterThenExit(t *testing.T) {
	tracker := NewTracker(location.DefaultThresholdMeters)
	markers := []models.Marker{markerA}

	first := tracker.Update(nearA, markers)
	assert.Equal(t, []string{"a"}, first.Entered.Sorted())

	stay := tracker.Update(nearA, markers)
	assert.False(t, stay.Changed())
	assert.Equal(t, []string{"a"}, stay.Current.Sorted())

	leave := tracker.Update(farA, markers)
	assert.Empty(t, leave.Entered)
	assert.Equal(t, []string{"a"}, leave.Exited.Sorted())
	assert.Empty(t, leave.Current)
}

func TestTracker_SwapBetweenMarkers(t *testing.T) {
	tracker := NewTracker(location.DefaultThresholdMeters)
	markers := []models.Marker{markerA, markerB}

	tracker.Update(nearA, markers)
	update := tracker.Update(nearB, markers)

	assert.Equal(t, []string{"b"}, update.Entered.Sorted())
	assert.Equal(t, []string{"a"}, update.Exited.Sorted())
	assert.Equal(t, []string{"b"}, update.Current.Sorted())
}

func TestTracker_DeletedMarkerExits(t *testing.T) {
	tracker := NewTracker(location.DefaultThresholdMeters)

	tracker.Update(nearA, []models.Marker{markerA, markerB})
	update := tracker.Update(nearA, []models.Marker{markerB})

	assert.Empty(t, update.Entered)
	assert.Equal(t, []string{"a"}, update.Exited.Sorted())
	assert.Empty(t, update.Current)
}

func TestTracker_EnteredAndExitedAreDisjoint(t *testing.T) {
	tracker := NewTracker(location.DefaultThresholdMeters)
	markers := []models.Marker{markerA, markerB}
	samples := []models.PositionSample{nearA, nearB, farA, nearA, nearA, nearB}

	for _, s := range samples {
		update := tracker.Update(s, markers)
		for id := range update.Entered {
			assert.False(t, update.Exited.Has(id), "marker %s both entered and exited", id)
		}
		assert.Equal(t, tracker.Current(), update.Current)
	}
}

func TestTracker_ThresholdIsInclusive(t *testing.T) {
	d := location.Distance(nearA.Coordinate, markerA.Coordinate)

	inclusive := NewTracker(d)
	assert.Equal(t, []string{"a"}, inclusive.Update(nearA, []models.Marker{markerA}).Entered.Sorted())

	exclusive := NewTracker(d - 0.01)
	assert.Empty(t, exclusive.Update(nearA, []models.Marker{markerA}).Entered)
}

func TestTracker_DuplicateIDsCollapse(t *testing.T) {
	tracker := NewTracker(location.DefaultThresholdMeters)
	dup := markerA
	dup.Coordinate = markerB.Coordinate

	update := tracker.Update(nearA, []models.Marker{markerA, dup})
	assert.Equal(t, []string{"a"}, update.Entered.Sorted())
}

func TestTracker_Reset(t *testing.T) {
	tracker := NewTracker(location.DefaultThresholdMeters)
	markers := []models.Marker{markerA}

	tracker.Update(nearA, markers)
	tracker.Reset()
	assert.Empty(t, tracker.Current())

	update := tracker.Update(nearA, markers)
	assert.Equal(t, []string{"a"}, update.Entered.Sorted())
}

func TestTracker_EmptyMarkers(t *testing.T) {
	tracker := NewTracker(location.DefaultThresholdMeters)

	update := tracker.Update(nearA, nil)
	assert.False(t, update.Changed())
	assert.Empty(t, update.Current)
}
