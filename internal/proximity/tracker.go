package proximity

import (
	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/benmeehan/proximity-agent/pkg/location"
)

// Tracker classifies markers as nearby for each position sample and reports
// the enter and exit transitions against the previous sample.
//
// Tracker is not safe for concurrent use; Monitor serializes access.
type Tracker struct {
	threshold float64
	previous  models.IDSet
}

// NewTracker creates a Tracker using the given proximity radius in meters.
func NewTracker(thresholdMeters float64) *Tracker {
	return &Tracker{
		threshold: thresholdMeters,
		previous:  make(models.IDSet),
	}
}

// Threshold returns the proximity radius in meters.
func (t *Tracker) Threshold() float64 {
	return t.threshold
}

// Update recomputes the nearby set by a linear scan over markers and diffs it
// against the set computed for the previous sample. Ids present in the previous
// set but missing from markers are reported as exited.
func (t *Tracker) Update(sample models.PositionSample, markers []models.Marker) models.ProximityUpdate {
	current := make(models.IDSet)
	for _, m := range markers {
		if location.IsWithin(sample.Coordinate, m.Coordinate, t.threshold) {
			current[m.ID] = struct{}{}
		}
	}

	update := models.ProximityUpdate{
		Sample:  sample,
		Entered: current.Minus(t.previous),
		Exited:  t.previous.Minus(current),
		Current: current.Clone(),
	}
	t.previous = current
	return update
}

// Current returns a copy of the nearby set from the last update.
func (t *Tracker) Current() models.IDSet {
	return t.previous.Clone()
}

// Reset forgets the previous set so the next update reports fresh enters.
func (t *Tracker) Reset() {
	t.previous = make(models.IDSet)
}
