package sources

import (
	"context"
	"errors"
	"time"

	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/benmeehan/proximity-agent/pkg/location"
	"github.com/rs/zerolog"
)

// PollingSource asks a location provider for a fix on every tick.
type PollingSource struct {
	provider location.Provider
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewPollingSource creates a source polling provider every interval.
func NewPollingSource(provider location.Provider, interval time.Duration, logger zerolog.Logger) *PollingSource {
	return &PollingSource{
		provider: provider,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

func (p *PollingSource) Name() string { return p.provider.Name() }

// Run polls immediately and then on every tick. Provider errors other than a
// permission refusal are logged and the next tick is awaited.
func (p *PollingSource) Run(ctx context.Context, out chan<- models.PositionSample) error {
	defer func() {
		if err := p.provider.Close(); err != nil {
			p.logger.Error().Err(err).Str("provider", p.provider.Name()).Msg("Failed to close location provider")
		}
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		loc, err := p.provider.GetLocation(ctx)
		switch {
		case errors.Is(err, location.ErrPermissionDenied):
			return err
		case ctx.Err() != nil:
			return nil
		case err != nil:
			p.logger.Error().
				Err(err).
				Str("provider", p.provider.Name()).
				Msg("Failed to get location from provider")
		default:
			sample := models.PositionSample{
				Coordinate: loc.Coordinate(),
				Accuracy:   loc.Accuracy,
				Timestamp:  p.now(),
				Source:     p.provider.Name(),
			}
			if !send(ctx, out, sample) {
				return nil
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}
