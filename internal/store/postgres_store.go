package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/benmeehan/proximity-agent/pkg/location"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/rs/zerolog"
)

const (
	foreignKeyViolation       = "23503"
	invalidTextRepresentation = "22P02" // e.g. a malformed UUID
)

const schema = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS markers (
	id          UUID PRIMARY KEY,
	location    GEOMETRY(Point, 4326) NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS marker_images (
	id        UUID PRIMARY KEY,
	marker_id UUID NOT NULL REFERENCES markers(id) ON DELETE CASCADE,
	uri       TEXT NOT NULL,
	name      TEXT NOT NULL DEFAULT ''
);`

var _ MarkerStore = (*PostgresStore)(nil)

// PostgresStore keeps markers in a PostGIS enabled Postgres database.
type PostgresStore struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB, logger zerolog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger, now: time.Now}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate marker schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMarkers(ctx context.Context) ([]models.Marker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ST_AsText(location), title, description, created_at FROM markers ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var markers []models.Marker
	index := make(map[string]int)
	for rows.Next() {
		m, err := scanMarker(rows)
		if err != nil {
			return nil, err
		}
		index[m.ID] = len(markers)
		markers = append(markers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	if len(markers) == 0 {
		return markers, nil
	}

	images, err := s.queryImages(ctx, `SELECT id, marker_id, uri, name FROM marker_images ORDER BY id`)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		if i, ok := index[img.MarkerID]; ok {
			markers[i].Images = append(markers[i].Images, img)
		}
	}
	return markers, nil
}

func (s *PostgresStore) GetMarker(ctx context.Context, id string) (models.Marker, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, ST_AsText(location), title, description, created_at FROM markers WHERE id = $1`,
		id,
	)
	m, err := scanMarker(row)
	if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
		return models.Marker{}, fmt.Errorf("%w: %s", ErrMarkerNotFound, id)
	}
	if err != nil {
		return models.Marker{}, err
	}

	images, err := s.queryImages(ctx, `SELECT id, marker_id, uri, name FROM marker_images WHERE marker_id = $1 ORDER BY id`, id)
	if err != nil {
		return models.Marker{}, err
	}
	m.Images = images
	return m, nil
}

func (s *PostgresStore) AddMarker(ctx context.Context, in models.NewMarker) (models.Marker, error) {
	coord := in.Coordinate()
	if err := coord.Validate(); err != nil {
		return models.Marker{}, err
	}

	marker := models.Marker{
		ID:          uuid.NewString(),
		Coordinate:  coord,
		Title:       in.Title,
		Description: in.Description,
		CreatedAt:   s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO markers (id, location, title, description, created_at) VALUES ($1, ST_GeomFromText($2, 4326), $3, $4, $5)`,
		marker.ID, wkt.MarshalString(coord.Point()), marker.Title, marker.Description, marker.CreatedAt,
	)
	if err != nil {
		return models.Marker{}, fmt.Errorf("insert marker: %w", err)
	}

	s.logger.Info().Str("marker_id", marker.ID).Str("coordinate", coord.String()).Msg("Marker added")
	return marker, nil
}

// DeleteMarker removes the marker; its images go with it through the cascade.
func (s *PostgresStore) DeleteMarker(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM markers WHERE id = $1`, id)
	if isInvalidID(err) {
		return fmt.Errorf("%w: %s", ErrMarkerNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrMarkerNotFound, id)
	}
	s.logger.Info().Str("marker_id", id).Msg("Marker deleted")
	return nil
}

func (s *PostgresStore) AddImage(ctx context.Context, image models.Image) (models.Image, error) {
	if image.ID == "" {
		image.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO marker_images (id, marker_id, uri, name) VALUES ($1, $2, $3, $4)`,
		image.ID, image.MarkerID, image.URI, image.Name,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && (pqErr.Code == foreignKeyViolation || pqErr.Code == invalidTextRepresentation) {
		return models.Image{}, fmt.Errorf("%w: %s", ErrMarkerNotFound, image.MarkerID)
	}
	if err != nil {
		return models.Image{}, fmt.Errorf("insert image: %w", err)
	}
	return image, nil
}

func (s *PostgresStore) DeleteImage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM marker_images WHERE id = $1`, id)
	if isInvalidID(err) {
		return fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping is used by the health endpoint.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) queryImages(ctx context.Context, query string, args ...any) ([]models.Image, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var images []models.Image
	for rows.Next() {
		var img models.Image
		if err := rows.Scan(&img.ID, &img.MarkerID, &img.URI, &img.Name); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// isInvalidID reports whether Postgres rejected an id that is not a UUID.
// No row can match such an id.
func isInvalidID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == invalidTextRepresentation
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMarker(row scanner) (models.Marker, error) {
	var (
		m     models.Marker
		point string
	)
	if err := row.Scan(&m.ID, &point, &m.Title, &m.Description, &m.CreatedAt); err != nil {
		return models.Marker{}, err
	}
	p, err := wkt.UnmarshalPoint(point)
	if err != nil {
		return models.Marker{}, fmt.Errorf("marker %s: invalid location %q: %w", m.ID, point, err)
	}
	m.Coordinate = location.FromPoint(p)
	return m, nil
}
