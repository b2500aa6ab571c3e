package proximity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/benmeehan/proximity-agent/internal/notifications"
	"github.com/benmeehan/proximity-agent/pkg/location"
	"github.com/rs/zerolog"
)

// Monitor drives a Tracker and a notification Ledger from the position stream.
// Calls to Update and ClearAll are serialized so every sample is diffed
// against the sample before it.
type Monitor struct {
	mu      sync.Mutex
	tracker *Tracker
	ledger  *notifications.Ledger
	logger  zerolog.Logger
}

// NewMonitor wires a tracker to a ledger.
func NewMonitor(tracker *Tracker, ledger *notifications.Ledger, logger zerolog.Logger) *Monitor {
	return &Monitor{
		tracker: tracker,
		ledger:  ledger,
		logger:  logger,
	}
}

// Update processes one position sample against the current marker set.
//
// The returned update is valid even when err is non-nil: a failed issue or
// cancel is reported but the tracker has already moved on, and the ledger will
// retry on a later transition.
func (m *Monitor) Update(ctx context.Context, sample models.PositionSample, markers []models.Marker) (models.ProximityUpdate, error) {
	if err := sample.Coordinate.Validate(); err != nil {
		return models.ProximityUpdate{}, fmt.Errorf("rejecting position sample: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	update := m.tracker.Update(sample, markers)

	// Reconcile the ledger with the nearby set so that an issue or cancel
	// that failed earlier is retried while the marker stays in or out of range.
	entered := update.Entered.Clone()
	for id := range update.Current {
		if !m.ledger.IsActive(id) {
			entered[id] = struct{}{}
		}
	}
	exited := update.Exited.Clone()
	for _, record := range m.ledger.Active() {
		if !update.Current.Has(record.MarkerID) {
			exited[record.MarkerID] = struct{}{}
		}
	}

	if len(entered) == 0 && len(exited) == 0 {
		return update, nil
	}

	byID := make(map[string]models.DisplayContext, len(markers))
	for _, marker := range markers {
		byID[marker.ID] = marker.DisplayContext()
	}
	lookup := func(id string) (models.DisplayContext, bool) {
		dc, ok := byID[id]
		return dc, ok
	}

	m.logger.Debug().
		Str("position", sample.Coordinate.String()).
		Strs("entered", entered.Sorted()).
		Strs("exited", exited.Sorted()).
		Msg("Proximity changed")

	err := m.ledger.ApplyEvents(ctx, entered, exited, lookup)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Some notification operations failed")
	}
	return update, err
}

// ClearAll withdraws every outstanding notification and forgets the last
// nearby set. The tracker is only reset when the ledger is fully cleared.
func (m *Monitor) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ledger.ClearAll(ctx); err != nil {
		return err
	}
	m.tracker.Reset()
	return nil
}

// Cleanup withdraws notifications older than maxAge.
func (m *Monitor) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ledger.CleanupOlderThan(ctx, maxAge)
}

// Nearby returns the nearby set computed for the last sample.
func (m *Monitor) Nearby() models.IDSet {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.tracker.Current()
}

// Ledger returns the notification ledger driven by the monitor.
func (m *Monitor) Ledger() *notifications.Ledger {
	return m.ledger
}

// Threshold returns the proximity radius in meters.
func (m *Monitor) Threshold() float64 {
	return m.tracker.Threshold()
}

// IsRejected reports whether err came from an invalid position sample.
func IsRejected(err error) bool {
	return errors.Is(err, location.ErrInvalidCoordinate)
}
