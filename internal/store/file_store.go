package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/benmeehan/proximity-agent/pkg/file"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fileState struct {
	Markers []models.Marker `json:"markers"`
}

// FileStore keeps markers in a single JSON document on local disk.
type FileStore struct {
	filePath   string
	fileClient file.FileOperations
	logger     zerolog.Logger
	now        func() time.Time
	mu         sync.Mutex
}

// NewFileStore creates a store backed by filePath. The file is created on the first write.
func NewFileStore(filePath string, fileClient file.FileOperations, logger zerolog.Logger) *FileStore {
	return &FileStore{
		filePath:   filePath,
		fileClient: fileClient,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *FileStore) ListMarkers(_ context.Context) ([]models.Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return nil, err
	}
	return state.Markers, nil
}

func (s *FileStore) GetMarker(_ context.Context, id string) (models.Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return models.Marker{}, err
	}
	i := indexOf(state.Markers, id)
	if i < 0 {
		return models.Marker{}, fmt.Errorf("%w: %s", ErrMarkerNotFound, id)
	}
	return state.Markers[i], nil
}

func (s *FileStore) AddMarker(_ context.Context, in models.NewMarker) (models.Marker, error) {
	if err := in.Coordinate().Validate(); err != nil {
		return models.Marker{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return models.Marker{}, err
	}

	marker := models.Marker{
		ID:          uuid.NewString(),
		Coordinate:  in.Coordinate(),
		Title:       in.Title,
		Description: in.Description,
		CreatedAt:   s.now().UTC(),
	}
	state.Markers = append(state.Markers, marker)

	if err := s.save(state); err != nil {
		return models.Marker{}, err
	}
	s.logger.Info().Str("marker_id", marker.ID).Str("coordinate", marker.Coordinate.String()).Msg("Marker added")
	return marker, nil
}

func (s *FileStore) DeleteMarker(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	i := indexOf(state.Markers, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrMarkerNotFound, id)
	}
	state.Markers = slices.Delete(state.Markers, i, i+1)

	if err := s.save(state); err != nil {
		return err
	}
	s.logger.Info().Str("marker_id", id).Msg("Marker deleted")
	return nil
}

func (s *FileStore) AddImage(_ context.Context, image models.Image) (models.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return models.Image{}, err
	}
	i := indexOf(state.Markers, image.MarkerID)
	if i < 0 {
		return models.Image{}, fmt.Errorf("%w: %s", ErrMarkerNotFound, image.MarkerID)
	}

	if image.ID == "" {
		image.ID = uuid.NewString()
	}
	state.Markers[i].Images = append(state.Markers[i].Images, image)

	if err := s.save(state); err != nil {
		return models.Image{}, err
	}
	return image, nil
}

func (s *FileStore) DeleteImage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	for i := range state.Markers {
		images := state.Markers[i].Images
		j := slices.IndexFunc(images, func(img models.Image) bool { return img.ID == id })
		if j >= 0 {
			state.Markers[i].Images = slices.Delete(images, j, j+1)
			return s.save(state)
		}
	}
	return fmt.Errorf("%w: %s", ErrImageNotFound, id)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) load() (fileState, error) {
	var state fileState
	if err := s.fileClient.ReadJsonFile(s.filePath, &state); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileState{}, nil
		}
		s.logger.Error().Err(err).Str("file", s.filePath).Msg("Failed to read marker file")
		return fileState{}, fmt.Errorf("failed to read marker file: %w", err)
	}
	return state, nil
}

func (s *FileStore) save(state fileState) error {
	if err := s.fileClient.WriteJsonFile(s.filePath, state); err != nil {
		s.logger.Error().Err(err).Str("file", s.filePath).Msg("Failed to write marker file")
		return fmt.Errorf("failed to write marker file: %w", err)
	}
	return nil
}

func indexOf(markers []models.Marker, id string) int {
	return slices.IndexFunc(markers, func(m models.Marker) bool { return m.ID == id })
}
