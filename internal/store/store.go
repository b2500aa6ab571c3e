package store

import (
	"context"
	"errors"

	"github.com/benmeehan/proximity-agent/internal/models"
)

var (
	ErrMarkerNotFound = errors.New("marker not found")
	ErrImageNotFound  = errors.New("image not found")
)

// MarkerStore persists markers and their images.
// ListMarkers returns a snapshot ordered by creation time.
type MarkerStore interface {
	ListMarkers(ctx context.Context) ([]models.Marker, error)
	GetMarker(ctx context.Context, id string) (models.Marker, error)
	AddMarker(ctx context.Context, in models.NewMarker) (models.Marker, error)
	DeleteMarker(ctx context.Context, id string) error
	AddImage(ctx context.Context, image models.Image) (models.Image, error)
	DeleteImage(ctx context.Context, id string) error
	Close() error
}
