package sources

import (
	"context"

	"github.com/benmeehan/proximity-agent/internal/models"
)

// PositionSource pushes position samples into out until the stream ends.
//
// Run returns nil when the stream ends normally or ctx is cancelled, and
// location.ErrPermissionDenied when the platform withdraws access.
type PositionSource interface {
	Name() string
	Run(ctx context.Context, out chan<- models.PositionSample) error
}

// send delivers the sample unless ctx is done first.
func send(ctx context.Context, out chan<- models.PositionSample, sample models.PositionSample) bool {
	select {
	case out <- sample:
		return true
	case <-ctx.Done():
		return false
	}
}
