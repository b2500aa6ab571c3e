package store

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db, zerolog.Nop()), mock
}

var markerColumns = []string{"id", "st_astext", "title", "description", "created_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS markers`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListMarkers(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Unix(1715003456, 0).UTC()

	mock.ExpectQuery(`SELECT id, ST_AsText\(location\), title, description, created_at FROM markers ORDER BY created_at, id`).
		WillReturnRows(sqlmock.NewRows(markerColumns).
			AddRow("m1", "POINT(56.20786 58.00937)", "Fountain", "", ts).
			AddRow("m2", "POINT(37.6173 55.7558)", "Square", "Center", ts))
	mock.ExpectQuery(`SELECT id, marker_id, uri, name FROM marker_images ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "marker_id", "uri", "name"}).
			AddRow("i1", "m2", "s3://photos/square.jpg", "square.jpg"))

	markers, err := s.ListMarkers(context.Background())
	require.NoError(t, err)
	require.Len(t, markers, 2)

	assert.Equal(t, "m1", markers[0].ID)
	assert.Equal(t, 58.00937, markers[0].Coordinate.Latitude)
	assert.Equal(t, 56.20786, markers[0].Coordinate.Longitude)
	assert.Empty(t, markers[0].Images)
	require.Len(t, markers[1].Images, 1)
	assert.Equal(t, "square.jpg", markers[1].Images[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListMarkers_InvalidLocation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, ST_AsText`).
		WillReturnRows(sqlmock.NewRows(markerColumns).AddRow("m1", "LINESTRING(0 0, 1 1)", "", "", time.Now()))

	_, err := s.ListMarkers(context.Background())
	assert.ErrorContains(t, err, "invalid location")
}

func TestPostgresStore_AddMarker(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return ts }

	mock.ExpectExec(`INSERT INTO markers \(id, location, title, description, created_at\) VALUES \(\$1, ST_GeomFromText\(\$2, 4326\), \$3, \$4, \$5\)`).
		WithArgs(sqlmock.AnyArg(), "POINT(56.20786 58.00937)", "Fountain", "Old square", ts).
		WillReturnResult(sqlmock.NewResult(1, 1))

	m, err := s.AddMarker(context.Background(), models.NewMarker{
		Latitude: 58.00937, Longitude: 56.20786, Title: "Fountain", Description: "Old square",
	})
	require.NoError(t, err)
	assert.Len(t, m.ID, 36)
	assert.Equal(t, ts, m.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddMarker_InvalidCoordinate(t *testing.T) {
	s, mock := newMockStore(t)

	_, err := s.AddMarker(context.Background(), models.NewMarker{Latitude: 0, Longitude: 200})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMarker_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM markers WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(markerColumns))

	_, err := s.GetMarker(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMarkerNotFound)
}

func TestPostgresStore_DeleteMarker(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM markers WHERE id = \$1`).WithArgs("m1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM markers WHERE id = \$1`).WithArgs("m1").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.DeleteMarker(context.Background(), "m1"))
	assert.ErrorIs(t, s.DeleteMarker(context.Background(), "m1"), ErrMarkerNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MalformedIDIsNotFound(t *testing.T) {
	// Setup
	s, mock := newMockStore(t)
	invalid := &pq.Error{Code: invalidTextRepresentation, Message: `invalid input syntax for type uuid: "abc"`}
	mock.ExpectQuery(`SELECT id, ST_AsText\(location\), title, description, created_at FROM markers WHERE id = \$1`).
		WithArgs("abc").WillReturnError(invalid)
	mock.ExpectExec(`DELETE FROM markers WHERE id = \$1`).WithArgs("abc").WillReturnError(invalid)
	mock.ExpectExec(`DELETE FROM marker_images WHERE id = \$1`).WithArgs("abc").WillReturnError(invalid)
	mock.ExpectExec(`INSERT INTO marker_images`).
		WithArgs(sqlmock.AnyArg(), "abc", "s3://photos/a.jpg", "").WillReturnError(invalid)

	// Execute
	_, getErr := s.GetMarker(context.Background(), "abc")
	deleteErr := s.DeleteMarker(context.Background(), "abc")
	deleteImageErr := s.DeleteImage(context.Background(), "abc")
	_, addImageErr := s.AddImage(context.Background(), models.Image{MarkerID: "abc", URI: "s3://photos/a.jpg"})

	// Assert
	assert.ErrorIs(t, getErr, ErrMarkerNotFound)
	assert.ErrorIs(t, deleteErr, ErrMarkerNotFound)
	assert.ErrorIs(t, deleteImageErr, ErrImageNotFound)
	assert.ErrorIs(t, addImageErr, ErrMarkerNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddImage_UnknownMarker(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO marker_images`).
		WithArgs(sqlmock.AnyArg(), "missing", "s3://photos/a.jpg", "a.jpg").
		WillReturnError(&pq.Error{Code: foreignKeyViolation})

	_, err := s.AddImage(context.Background(), models.Image{MarkerID: "missing", URI: "s3://photos/a.jpg", Name: "a.jpg"})
	assert.ErrorIs(t, err, ErrMarkerNotFound)
}

func TestPostgresStore_AddImage(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO marker_images`).
		WithArgs("i1", "m1", "s3://photos/a.jpg", "").
		WillReturnResult(driver.RowsAffected(1))

	img, err := s.AddImage(context.Background(), models.Image{ID: "i1", MarkerID: "m1", URI: "s3://photos/a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "i1", img.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteImage_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM marker_images WHERE id = \$1`).WithArgs("i1").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.DeleteImage(context.Background(), "i1"), ErrImageNotFound)
}
