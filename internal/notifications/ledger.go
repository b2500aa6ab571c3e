package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/benmeehan/proximity-agent/internal/utils"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultCallTimeout = 10 * time.Second
	DefaultMaxAge      = 24 * time.Hour
)

// Ledger keeps at most one outstanding notification per marker id.
//
// Each marker id is either Absent (no record) or Active (one record). A
// successful enter moves Absent to Active, a successful exit, clear or cleanup
// moves Active to Absent, and every other call is a no-op for that id.
type Ledger struct {
	issuer    Issuer
	canceller Canceller
	logger    zerolog.Logger

	records  cmap.ConcurrentMap[string, models.NotificationRecord]
	inFlight cmap.ConcurrentMap[string, struct{}]

	pool        *utils.WorkerPool
	callTimeout time.Duration
	now         func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithWorkers dispatches the operations of one ApplyEvents batch on n workers.
// Without it operations run one after another on the caller's goroutine.
func WithWorkers(n int) Option {
	return func(l *Ledger) {
		if n > 1 {
			l.pool = utils.NewWorkerPool(n)
		}
	}
}

// WithCallTimeout bounds every call into the issuer or canceller.
func WithCallTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.callTimeout = d
		}
	}
}

// WithClock overrides the time source used for issuance timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates an empty ledger.
func NewLedger(issuer Issuer, canceller Canceller, logger zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		issuer:      issuer,
		canceller:   canceller,
		logger:      logger,
		records:     cmap.New[models.NotificationRecord](),
		inFlight:    cmap.New[struct{}](),
		callTimeout: DefaultCallTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ApplyEnter issues a notification for markerID unless one is already outstanding.
func (l *Ledger) ApplyEnter(ctx context.Context, markerID string, display models.DisplayContext) error {
	if l.records.Has(markerID) {
		l.logger.Debug().Str("marker_id", markerID).Msg("Notification already active, skipping issuance")
		return nil
	}
	if !l.claim(markerID) {
		return fmt.Errorf("marker %s: %w", markerID, ErrBusy)
	}
	defer l.release(markerID)

	// An operation that finished between the check and the claim may have issued it.
	if l.records.Has(markerID) {
		return nil
	}

	if display.MarkerID == "" {
		display.MarkerID = markerID
	}
	notification := BuildNotification(display, l.now())

	callCtx, cancel := context.WithTimeout(ctx, l.callTimeout)
	defer cancel()

	handle, err := l.issuer.Issue(callCtx, notification)
	if err != nil {
		l.logger.Warn().Err(err).Str("marker_id", markerID).Msg("Failed to issue notification")
		return fmt.Errorf("%w: marker %s: %w", ErrIssuanceFailed, markerID, err)
	}

	l.records.Set(markerID, models.NotificationRecord{
		MarkerID: markerID,
		Handle:   handle,
		IssuedAt: notification.CreatedAt,
	})

	l.logger.Info().
		Str("marker_id", markerID).
		Str("notification_id", handle).
		Msg("Notification issued")
	return nil
}

// ApplyExit withdraws the outstanding notification for markerID, if any.
// The record is kept when cancellation fails.
func (l *Ledger) ApplyExit(ctx context.Context, markerID string) error {
	if !l.records.Has(markerID) {
		return nil
	}
	if !l.claim(markerID) {
		return fmt.Errorf("marker %s: %w", markerID, ErrBusy)
	}
	defer l.release(markerID)

	record, ok := l.records.Get(markerID)
	if !ok {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, l.callTimeout)
	defer cancel()

	if err := l.canceller.Cancel(callCtx, record.Handle); err != nil {
		l.logger.Warn().
			Err(err).
			Str("marker_id", markerID).
			Str("notification_id", record.Handle).
			Msg("Failed to cancel notification")
		return fmt.Errorf("%w: marker %s: %w", ErrCancellationFailed, markerID, err)
	}

	l.records.Remove(markerID)
	l.logger.Info().
		Str("marker_id", markerID).
		Str("notification_id", record.Handle).
		Msg("Notification cancelled")
	return nil
}

// ApplyEvents cancels notifications for every exited marker, then issues
// notifications for every entered marker. Operations inside one group target
// different markers and may run in parallel. Failures are joined and returned.
func (l *Ledger) ApplyEvents(ctx context.Context, entered, exited models.IDSet, lookup func(string) (models.DisplayContext, bool)) error {
	exitErrs := l.dispatch(exited.Sorted(), func(id string) error {
		return l.ApplyExit(ctx, id)
	})

	enterErrs := l.dispatch(entered.Sorted(), func(id string) error {
		display := models.DisplayContext{MarkerID: id}
		if lookup != nil {
			if dc, ok := lookup(id); ok {
				display = dc
			}
		}
		return l.ApplyEnter(ctx, id, display)
	})

	return errors.Join(append(exitErrs, enterErrs...)...)
}

// ClearAll cancels every outstanding notification. Records whose cancellation
// fails stay in the ledger and are reported. Clearing an empty ledger is a no-op.
func (l *Ledger) ClearAll(ctx context.Context) error {
	ids := l.records.Keys()
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)

	err := errors.Join(l.dispatch(ids, func(id string) error {
		return l.ApplyExit(ctx, id)
	})...)

	if err != nil {
		l.logger.Error().Err(err).Int("remaining", l.records.Count()).Msg("Failed to clear all notifications")
		return err
	}
	l.logger.Info().Int("cleared", len(ids)).Msg("All notifications cleared")
	return nil
}

// CleanupOlderThan withdraws notifications issued more than maxAge ago and
// returns how many were removed.
func (l *Ledger) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := l.now().Add(-maxAge)

	var stale []string
	for id, record := range l.records.Items() {
		if record.IssuedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	sort.Strings(stale)

	errs := l.dispatch(stale, func(id string) error {
		return l.ApplyExit(ctx, id)
	})

	removed := 0
	for _, err := range errs {
		if err == nil {
			removed++
		}
	}

	l.logger.Info().Int("removed", removed).Int("stale", len(stale)).Msg("Old notifications cleaned up")
	return removed, errors.Join(errs...)
}

// IsActive reports whether a notification is outstanding for markerID.
func (l *Ledger) IsActive(markerID string) bool {
	return l.records.Has(markerID)
}

// Active returns the outstanding records ordered by marker id.
func (l *Ledger) Active() []models.NotificationRecord {
	items := l.records.Items()
	records := make([]models.NotificationRecord, 0, len(items))
	for _, record := range items {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].MarkerID < records[j].MarkerID
	})
	return records
}

// Len returns the number of outstanding notifications.
func (l *Ledger) Len() int {
	return l.records.Count()
}

// Stats returns a snapshot of the outstanding notifications.
func (l *Ledger) Stats() models.LedgerStats {
	active := l.Active()
	return models.LedgerStats{
		Timestamp:   l.now(),
		TotalActive: len(active),
		Active:      active,
	}
}

// Close releases the worker pool. Outstanding records are left untouched; call ClearAll first.
func (l *Ledger) Close() {
	if l.pool != nil {
		l.pool.Shutdown()
	}
}

func (l *Ledger) claim(markerID string) bool {
	return l.inFlight.SetIfAbsent(markerID, struct{}{})
}

func (l *Ledger) release(markerID string) {
	l.inFlight.Remove(markerID)
}

// dispatch runs op for every id and waits for all of them. Results are
// returned in the order of ids.
func (l *Ledger) dispatch(ids []string, op func(string) error) []error {
	errs := make([]error, len(ids))
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			errs[i] = op(id)
		}
		if l.pool == nil || !l.pool.Submit(task) {
			task()
		}
	}

	wg.Wait()
	return errs
}
