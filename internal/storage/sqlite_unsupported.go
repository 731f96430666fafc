//go:build mips64 || mips64le || ppc64 || s390x

package storage

import (
	"errors"
	"log/slog"
	"time"
)

var errSQLiteUnavailable = errors.New("sqlite storage not available")

// SQLiteStore is a stub for platforms the pure Go driver does not build on.
type SQLiteStore struct{}

// NewSQLiteStore always fails here; callers fall back to memory storage.
func NewSQLiteStore(path string, maxRows int, logger *slog.Logger) (*SQLiteStore, error) {
	return nil, errors.New("sqlite storage is not supported on this platform, use STORAGE=memory")
}

func (s *SQLiteStore) Insert(c *Call) error {
	return errSQLiteUnavailable
}

func (s *SQLiteStore) Update(id string, upd CallUpdate) error {
	return errSQLiteUnavailable
}

func (s *SQLiteStore) GetByID(id string) (*Call, error) {
	return nil, errSQLiteUnavailable
}

func (s *SQLiteStore) List(opts ListOptions) ([]Call, error) {
	return nil, errSQLiteUnavailable
}

func (s *SQLiteStore) Overview(window time.Duration) (*Overview, error) {
	return nil, errSQLiteUnavailable
}

func (s *SQLiteStore) RouteStats(window time.Duration) ([]RouteStat, error) {
	return nil, errSQLiteUnavailable
}

func (s *SQLiteStore) Series(opts SeriesOptions) ([]DataPoint, error) {
	return nil, errSQLiteUnavailable
}

func (s *SQLiteStore) InFlightCount() (int, error) {
	return 0, errSQLiteUnavailable
}

func (s *SQLiteStore) Close() error {
	return nil
}
