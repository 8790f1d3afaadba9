package store

import (
	"errors"
	"strings"

	"tct_console/models"
)

// ErrBusy reports that a concurrent writer held the store beyond the lock
// wait bound. Callers must treat it as a failed read or write, never as an
// empty result set.
var ErrBusy = errors.New("store busy: lock wait exceeded")

// Store is the shared-database contract between the console and the
// scraping daemon: read-model queries over daemon-written tables plus the
// append-only command queue. Every call is a single short-lived
// transaction; the store reconnects implicitly if it was never connected
// or has been closed.
//
// Commands are fire-and-forget. Enqueue guarantees the row is committed
// and visible to any later reader; whether the daemon ever consumes it is
// outside this contract.
type Store interface {
	Connect() error
	Close() error

	SiteStats() ([]models.SiteStats, error)
	RecentRuns(limit int) ([]models.ScrapeRun, error)
	RecentLogs(limit int, level *models.LogLevel) ([]models.ScrapeLog, error)
	Properties(limit int, unsyncedOnly bool) ([]models.Property, error)
	SnapshotsForProperty(propertyID string) ([]models.Snapshot, error)
	PropertyCount() (int, error)
	SnapshotCount() (int, error)
	UnsyncedCount() (int, error)

	Enqueue(cmd models.CommandType, params *models.CommandParams) (int64, error)
	ScrapeNow() (int64, error)
	ScrapeSite(siteID string) (int64, error)
	Pause() (int64, error)
	Resume() (int64, error)
	SyncNow() (int64, error)
}

// Open picks a backend from the store location: postgres:// and
// postgresql:// connection strings get the pgx backend, anything else is
// treated as a SQLite file path. Neither backend connects until the first
// operation needs it.
func Open(dsn string) Store {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgresStore(dsn)
	}
	return NewSQLiteStore(dsn)
}
