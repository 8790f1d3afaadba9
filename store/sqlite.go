package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"tct_console/models"
)

// busyTimeoutMS bounds how long a call waits on a lock held by the daemon
// before failing with ErrBusy.
const busyTimeoutMS = 5000

// SQLiteStore talks to the daemon's operational database file. The handle
// is lazy: nothing is opened until the first call that needs it, and a
// closed store reopens transparently.
type SQLiteStore struct {
	path string
	db   *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Connect() error {
	if s.db != nil {
		return nil
	}
	db, err := sql.Open("sqlite3",
		fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", s.path, busyTimeoutMS))
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", mapBusy(err))
	}
	s.db = db
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) conn() (*sql.DB, error) {
	if s.db == nil {
		if err := s.Connect(); err != nil {
			return nil, err
		}
	}
	return s.db, nil
}

// migrate creates the shared tables if the daemon has not already. The
// daemon owns the schema; this only makes a fresh console pointed at an
// empty path see empty read models instead of missing-table errors.
func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS site_stats (
		site_id TEXT PRIMARY KEY,
		last_run_at DATETIME,
		last_run_status TEXT,
		total_properties INTEGER,
		total_snapshots INTEGER,
		properties_synced INTEGER,
		success_rate REAL,
		avg_run_duration_sec INTEGER
	);

	CREATE TABLE IF NOT EXISTS scrape_runs (
		id INTEGER PRIMARY KEY,
		site_id TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		listings_found INTEGER,
		listings_new INTEGER,
		properties_new INTEGER,
		properties_relisted INTEGER,
		errors_count INTEGER
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		site_id TEXT
	);

	CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		normalized_address TEXT,
		city TEXT,
		beds INTEGER,
		baths INTEGER,
		sqft INTEGER,
		property_type TEXT,
		first_seen_at DATETIME,
		last_seen_at DATETIME,
		times_listed INTEGER DEFAULT 1,
		synced BOOLEAN DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS listing_snapshots (
		id INTEGER PRIMARY KEY,
		property_id TEXT NOT NULL,
		listing_id TEXT NOT NULL,
		site_id TEXT NOT NULL,
		url TEXT,
		price INTEGER,
		data JSON,
		scraped_at DATETIME,
		run_id INTEGER,
		FOREIGN KEY (property_id) REFERENCES properties(id)
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_property ON listing_snapshots(property_id, scraped_at);
	CREATE INDEX IF NOT EXISTS idx_logs_level ON scrape_logs(level, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON scrape_runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_properties_seen ON properties(last_seen_at);
	`
	_, err := db.Exec(schema)
	return err
}

// mapBusy rewraps lock-contention failures as ErrBusy so callers can tell
// "store held by the daemon" apart from every other failure.
func mapBusy(err error) error {
	if err == nil {
		return nil
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) && (serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}

func (s *SQLiteStore) SiteStats() ([]models.SiteStats, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(`
		SELECT site_id, last_run_at, last_run_status, total_properties,
			total_snapshots, properties_synced, success_rate, avg_run_duration_sec
		FROM site_stats ORDER BY site_id`)
	if err != nil {
		return nil, mapBusy(err)
	}
	defer rows.Close()

	var stats []models.SiteStats
	for rows.Next() {
		var st models.SiteStats
		var lastRunAt, lastRunStatus sql.NullString
		var totalProps, totalSnaps, synced, avgDur sql.NullInt64
		var successRate sql.NullFloat64
		if err := rows.Scan(&st.SiteID, &lastRunAt, &lastRunStatus, &totalProps,
			&totalSnaps, &synced, &successRate, &avgDur); err != nil {
			return nil, err
		}
		st.LastRunAt = parseTime(lastRunAt)
		st.LastRunStatus = nzStringPtr(lastRunStatus)
		st.TotalProperties = nzInt(totalProps)
		st.TotalSnapshots = nzInt(totalSnaps)
		st.PropertiesSynced = nzInt(synced)
		st.SuccessRate = nzFloat(successRate)
		st.AvgRunDurationSec = nzInt(avgDur)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) RecentRuns(limit int) ([]models.ScrapeRun, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(`
		SELECT id, site_id, started_at, finished_at, status, listings_found,
			listings_new, properties_new, properties_relisted, errors_count
		FROM scrape_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, mapBusy(err)
	}
	defer rows.Close()

	var runs []models.ScrapeRun
	for rows.Next() {
		var r models.ScrapeRun
		var siteID, startedAt, finishedAt, status sql.NullString
		var found, fresh, propsNew, relisted, errCount sql.NullInt64
		if err := rows.Scan(&r.ID, &siteID, &startedAt, &finishedAt, &status,
			&found, &fresh, &propsNew, &relisted, &errCount); err != nil {
			return nil, err
		}
		r.SiteID = nzString(siteID)
		r.Status = models.RunStatus(nzString(status))
		r.StartedAt = parseTime(startedAt)
		r.FinishedAt = parseTime(finishedAt)
		r.ListingsFound = nzInt(found)
		r.ListingsNew = nzInt(fresh)
		r.PropertiesNew = nzInt(propsNew)
		r.PropertiesRelisted = nzInt(relisted)
		r.ErrorsCount = nzInt(errCount)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecentLogs filters by exact level when one is given; WARN does not pull
// in ERROR.
func (s *SQLiteStore) RecentLogs(limit int, level *models.LogLevel) ([]models.ScrapeLog, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	if level != nil {
		rows, err = db.Query(`
			SELECT id, run_id, timestamp, level, message, site_id
			FROM scrape_logs WHERE level = ? ORDER BY timestamp DESC LIMIT ?`,
			string(*level), limit)
	} else {
		rows, err = db.Query(`
			SELECT id, run_id, timestamp, level, message, site_id
			FROM scrape_logs ORDER BY timestamp DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, mapBusy(err)
	}
	defer rows.Close()

	var logs []models.ScrapeLog
	for rows.Next() {
		var l models.ScrapeLog
		var runID sql.NullInt64
		var ts, lvl, message, siteID sql.NullString
		if err := rows.Scan(&l.ID, &runID, &ts, &lvl, &message, &siteID); err != nil {
			return nil, err
		}
		l.Level = models.LogLevel(nzString(lvl))
		l.Message = nzString(message)
		l.RunID = nzInt64Ptr(runID)
		l.Timestamp = parseTime(ts)
		l.SiteID = nzStringPtr(siteID)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) Properties(limit int, unsyncedOnly bool) ([]models.Property, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, normalized_address, city, beds, baths, sqft, property_type,
			first_seen_at, last_seen_at, times_listed, synced
		FROM properties`
	if unsyncedOnly {
		query += " WHERE synced = FALSE"
	}
	query += " ORDER BY last_seen_at DESC LIMIT ?"

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, mapBusy(err)
	}
	defer rows.Close()

	var props []models.Property
	for rows.Next() {
		var p models.Property
		var beds, baths, sqft, timesListed sql.NullInt64
		var address, city, propertyType, firstSeen, lastSeen sql.NullString
		var synced sql.NullBool
		if err := rows.Scan(&p.ID, &address, &city, &beds, &baths,
			&sqft, &propertyType, &firstSeen, &lastSeen, &timesListed, &synced); err != nil {
			return nil, err
		}
		p.NormalizedAddress = nzString(address)
		p.City = nzString(city)
		p.PropertyType = nzString(propertyType)
		p.Beds = nzInt(beds)
		p.Baths = nzInt(baths)
		p.SqFt = nzInt(sqft)
		p.FirstSeenAt = parseTime(firstSeen)
		p.LastSeenAt = parseTime(lastSeen)
		p.TimesListed = nzInt(timesListed)
		if p.TimesListed < 1 {
			p.TimesListed = 1
		}
		p.Synced = nzBool(synced)
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]string, len(props))
	for i := range props {
		ids[i] = props[i].ID
	}
	prices, err := s.latestPrices(db, ids)
	if err != nil {
		return nil, err
	}
	for i := range props {
		props[i].LatestPrice = prices[props[i].ID]
	}
	return props, nil
}

// latestPrices resolves the derived latest price as an explicit second
// read: newest scraped_at per property, then its price. When several
// snapshots share the newest scraped_at the first row returned wins; the
// query deliberately has no secondary sort key.
func (s *SQLiteStore) latestPrices(db *sql.DB, propertyIDs []string) (map[string]int, error) {
	prices := make(map[string]int, len(propertyIDs))
	if len(propertyIDs) == 0 {
		return prices, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(propertyIDs)), ",")
	args := make([]any, len(propertyIDs))
	for i, id := range propertyIDs {
		args[i] = id
	}

	rows, err := db.Query(`
		SELECT ls.property_id, ls.price
		FROM listing_snapshots ls
		JOIN (
			SELECT property_id, MAX(scraped_at) AS latest_at
			FROM listing_snapshots
			GROUP BY property_id
		) latest ON latest.property_id = ls.property_id AND latest.latest_at = ls.scraped_at
		WHERE ls.property_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, mapBusy(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var price sql.NullInt64
		if err := rows.Scan(&id, &price); err != nil {
			return nil, err
		}
		if _, seen := prices[id]; !seen {
			prices[id] = nzInt(price)
		}
	}
	return prices, rows.Err()
}

func (s *SQLiteStore) SnapshotsForProperty(propertyID string) ([]models.Snapshot, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(`
		SELECT id, property_id, listing_id, site_id, url, price, data, scraped_at, run_id
		FROM listing_snapshots WHERE property_id = ? ORDER BY scraped_at DESC`, propertyID)
	if err != nil {
		return nil, mapBusy(err)
	}
	defer rows.Close()

	var snaps []models.Snapshot
	for rows.Next() {
		var snap models.Snapshot
		var url, data, scrapedAt sql.NullString
		var price, runID sql.NullInt64
		if err := rows.Scan(&snap.ID, &snap.PropertyID, &snap.ListingID, &snap.SiteID,
			&url, &price, &data, &scrapedAt, &runID); err != nil {
			return nil, err
		}
		snap.URL = nzString(url)
		snap.Price = nzInt(price)
		snap.Data = decodeData(data)
		snap.ScrapedAt = parseTime(scrapedAt)
		snap.RunID = nzInt64Ptr(runID)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *SQLiteStore) PropertyCount() (int, error) {
	return s.count(`SELECT COUNT(*) FROM properties`)
}

func (s *SQLiteStore) SnapshotCount() (int, error) {
	return s.count(`SELECT COUNT(*) FROM listing_snapshots`)
}

func (s *SQLiteStore) UnsyncedCount() (int, error) {
	return s.count(`SELECT COUNT(*) FROM properties WHERE synced = FALSE`)
}

func (s *SQLiteStore) count(query string) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRow(query).Scan(&n); err != nil {
		return 0, mapBusy(err)
	}
	return n, nil
}

// Enqueue appends one command row and returns its id. Validation happens
// before the write so an unrecognized intent is never stored.
func (s *SQLiteStore) Enqueue(cmd models.CommandType, params *models.CommandParams) (int64, error) {
	if err := models.ValidateCommand(cmd, params); err != nil {
		return 0, err
	}
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	var payload any
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return 0, fmt.Errorf("marshal params: %w", err)
		}
		payload = string(b)
	}

	result, err := db.Exec(`
		INSERT INTO commands (command, params, created_at)
		VALUES (?, ?, ?)`,
		string(cmd), payload, time.Now().Format(time.RFC3339))
	if err != nil {
		return 0, mapBusy(err)
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) ScrapeNow() (int64, error) {
	return s.Enqueue(models.CmdScrapeNow, nil)
}

func (s *SQLiteStore) ScrapeSite(siteID string) (int64, error) {
	return s.Enqueue(models.CmdScrapeSite, &models.CommandParams{Site: siteID})
}

func (s *SQLiteStore) Pause() (int64, error) {
	return s.Enqueue(models.CmdPause, nil)
}

func (s *SQLiteStore) Resume() (int64, error) {
	return s.Enqueue(models.CmdResume, nil)
}

func (s *SQLiteStore) SyncNow() (int64, error) {
	return s.Enqueue(models.CmdSyncNow, nil)
}
