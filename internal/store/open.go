package store

import (
	"context"
	"fmt"

	"github.com/benmeehan/proximity-agent/internal/utils"
	"github.com/benmeehan/proximity-agent/pkg/file"
	"github.com/rs/zerolog"
)

// Open returns the marker store selected by config.
func Open(ctx context.Context, config *utils.Config, fileClient file.FileOperations, logger zerolog.Logger) (MarkerStore, error) {
	switch config.Store.Driver {
	case utils.DriverFile:
		return NewFileStore(config.Store.File, fileClient, logger), nil
	case utils.DriverPostgres:
		db, err := OpenPostgres(ctx, config.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s := NewPostgresStore(db, logger)
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", config.Store.Driver)
	}
}
