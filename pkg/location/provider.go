package location

import (
	"context"
	"errors"
)

// ErrPermissionDenied is returned when the platform refuses access to the position source.
var ErrPermissionDenied = errors.New("location permission denied")

// Provider is implemented by anything that can produce a single position fix.
type Provider interface {
	Name() string
	GetLocation(ctx context.Context) (Location, error)
	Close() error
}
