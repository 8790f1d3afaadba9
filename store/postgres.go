package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tct_console/models"
)

// pgLockNotAvailable is the SQLSTATE raised when lock_timeout expires.
const pgLockNotAvailable = "55P03"

// PostgresStore serves the same contract as SQLiteStore when the daemon's
// operational tables live in Postgres instead of a local file. The schema
// is owned by the daemon deployment; this side never migrates.
type PostgresStore struct {
	connString string
	pool       *pgxpool.Pool
}

func NewPostgresStore(connString string) *PostgresStore {
	return &PostgresStore{connString: connString}
}

func (s *PostgresStore) Connect() error {
	if s.pool != nil {
		return nil
	}

	config, err := pgxpool.ParseConfig(s.connString)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	config.MaxConns = 4
	config.MaxConnIdleTime = 5 * time.Minute
	// Same lock wait bound as the SQLite busy timeout.
	config.ConnConfig.RuntimeParams["lock_timeout"] = fmt.Sprintf("%d", busyTimeoutMS)

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping: %w", err)
	}

	s.pool = pool
	return nil
}

func (s *PostgresStore) Close() error {
	if s.pool == nil {
		return nil
	}
	s.pool.Close()
	s.pool = nil
	return nil
}

func (s *PostgresStore) conn() (*pgxpool.Pool, error) {
	if s.pool == nil {
		if err := s.Connect(); err != nil {
			return nil, err
		}
	}
	return s.pool, nil
}

func mapPgBusy(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}

func (s *PostgresStore) SiteStats() ([]models.SiteStats, error) {
	pool, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(context.Background(), `
		SELECT site_id, last_run_at, last_run_status, total_properties,
			total_snapshots, properties_synced, success_rate, avg_run_duration_sec
		FROM site_stats ORDER BY site_id`)
	if err != nil {
		return nil, mapPgBusy(err)
	}
	defer rows.Close()

	var stats []models.SiteStats
	for rows.Next() {
		var st models.SiteStats
		var lastRunAt sql.NullTime
		var lastRunStatus sql.NullString
		var totalProps, totalSnaps, synced, avgDur sql.NullInt64
		var successRate sql.NullFloat64
		if err := rows.Scan(&st.SiteID, &lastRunAt, &lastRunStatus, &totalProps,
			&totalSnaps, &synced, &successRate, &avgDur); err != nil {
			return nil, err
		}
		st.LastRunAt = nzTimePtr(lastRunAt)
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

func (s *PostgresStore) RecentRuns(limit int) ([]models.ScrapeRun, error) {
	pool, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(context.Background(), `
		SELECT id, site_id, started_at, finished_at, status, listings_found,
			listings_new, properties_new, properties_relisted, errors_count
		FROM scrape_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, mapPgBusy(err)
	}
	defer rows.Close()

	var runs []models.ScrapeRun
	for rows.Next() {
		var r models.ScrapeRun
		var siteID, status sql.NullString
		var startedAt, finishedAt sql.NullTime
		var found, fresh, propsNew, relisted, errCount sql.NullInt64
		if err := rows.Scan(&r.ID, &siteID, &startedAt, &finishedAt, &status,
			&found, &fresh, &propsNew, &relisted, &errCount); err != nil {
			return nil, err
		}
		r.SiteID = nzString(siteID)
		r.Status = models.RunStatus(nzString(status))
		r.StartedAt = nzTimePtr(startedAt)
		r.FinishedAt = nzTimePtr(finishedAt)
		r.ListingsFound = nzInt(found)
		r.ListingsNew = nzInt(fresh)
		r.PropertiesNew = nzInt(propsNew)
		r.PropertiesRelisted = nzInt(relisted)
		r.ErrorsCount = nzInt(errCount)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) RecentLogs(limit int, level *models.LogLevel) ([]models.ScrapeLog, error) {
	pool, err := s.conn()
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	query := `
		SELECT id, run_id, timestamp, level, message, site_id
		FROM scrape_logs ORDER BY timestamp DESC LIMIT $1`
	args := []any{limit}
	if level != nil {
		query = `
			SELECT id, run_id, timestamp, level, message, site_id
			FROM scrape_logs WHERE level = $1 ORDER BY timestamp DESC LIMIT $2`
		args = []any{string(*level), limit}
	}

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgBusy(err)
	}
	defer rows.Close()

	var logs []models.ScrapeLog
	for rows.Next() {
		var l models.ScrapeLog
		var runID sql.NullInt64
		var ts sql.NullTime
		var lvl, message, siteID sql.NullString
		if err := rows.Scan(&l.ID, &runID, &ts, &lvl, &message, &siteID); err != nil {
			return nil, err
		}
		l.Level = models.LogLevel(nzString(lvl))
		l.Message = nzString(message)
		l.RunID = nzInt64Ptr(runID)
		l.Timestamp = nzTimePtr(ts)
		l.SiteID = nzStringPtr(siteID)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *PostgresStore) Properties(limit int, unsyncedOnly bool) ([]models.Property, error) {
	pool, err := s.conn()
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
	query += " ORDER BY last_seen_at DESC LIMIT $1"

	rows, err := pool.Query(context.Background(), query, limit)
	if err != nil {
		return nil, mapPgBusy(err)
	}
	defer rows.Close()

	var props []models.Property
	for rows.Next() {
		var p models.Property
		var beds, baths, sqft, timesListed sql.NullInt64
		var address, city, propertyType sql.NullString
		var firstSeen, lastSeen sql.NullTime
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
		p.FirstSeenAt = nzTimePtr(firstSeen)
		p.LastSeenAt = nzTimePtr(lastSeen)
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
	prices, err := s.latestPrices(pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range props {
		props[i].LatestPrice = prices[props[i].ID]
	}
	return props, nil
}

func (s *PostgresStore) latestPrices(pool *pgxpool.Pool, propertyIDs []string) (map[string]int, error) {
	prices := make(map[string]int, len(propertyIDs))
	if len(propertyIDs) == 0 {
		return prices, nil
	}

	placeholders := make([]string, len(propertyIDs))
	args := make([]any, len(propertyIDs))
	for i, id := range propertyIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := pool.Query(context.Background(), `
		SELECT ls.property_id, ls.price
		FROM listing_snapshots ls
		JOIN (
			SELECT property_id, MAX(scraped_at) AS latest_at
			FROM listing_snapshots
			GROUP BY property_id
		) latest ON latest.property_id = ls.property_id AND latest.latest_at = ls.scraped_at
		WHERE ls.property_id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, mapPgBusy(err)
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

func (s *PostgresStore) SnapshotsForProperty(propertyID string) ([]models.Snapshot, error) {
	pool, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(context.Background(), `
		SELECT id, property_id, listing_id, site_id, url, price, data, scraped_at, run_id
		FROM listing_snapshots WHERE property_id = $1 ORDER BY scraped_at DESC`, propertyID)
	if err != nil {
		return nil, mapPgBusy(err)
	}
	defer rows.Close()

	var snaps []models.Snapshot
	for rows.Next() {
		var snap models.Snapshot
		var url, data sql.NullString
		var scrapedAt sql.NullTime
		var price, runID sql.NullInt64
		if err := rows.Scan(&snap.ID, &snap.PropertyID, &snap.ListingID, &snap.SiteID,
			&url, &price, &data, &scrapedAt, &runID); err != nil {
			return nil, err
		}
		snap.URL = nzString(url)
		snap.Price = nzInt(price)
		snap.Data = decodeData(data)
		snap.ScrapedAt = nzTimePtr(scrapedAt)
		snap.RunID = nzInt64Ptr(runID)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *PostgresStore) PropertyCount() (int, error) {
	return s.count(`SELECT COUNT(*) FROM properties`)
}

func (s *PostgresStore) SnapshotCount() (int, error) {
	return s.count(`SELECT COUNT(*) FROM listing_snapshots`)
}

func (s *PostgresStore) UnsyncedCount() (int, error) {
	return s.count(`SELECT COUNT(*) FROM properties WHERE synced = FALSE`)
}

func (s *PostgresStore) count(query string) (int, error) {
	pool, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := pool.QueryRow(context.Background(), query).Scan(&n); err != nil {
		return 0, mapPgBusy(err)
	}
	return n, nil
}

func (s *PostgresStore) Enqueue(cmd models.CommandType, params *models.CommandParams) (int64, error) {
	if err := models.ValidateCommand(cmd, params); err != nil {
		return 0, err
	}
	pool, err := s.conn()
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

	var id int64
	err = pool.QueryRow(context.Background(), `
		INSERT INTO commands (command, params, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`,
		string(cmd), payload, time.Now()).Scan(&id)
	if err != nil {
		return 0, mapPgBusy(err)
	}
	return id, nil
}

func (s *PostgresStore) ScrapeNow() (int64, error) {
	return s.Enqueue(models.CmdScrapeNow, nil)
}

func (s *PostgresStore) ScrapeSite(siteID string) (int64, error) {
	return s.Enqueue(models.CmdScrapeSite, &models.CommandParams{Site: siteID})
}

func (s *PostgresStore) Pause() (int64, error) {
	return s.Enqueue(models.CmdPause, nil)
}

func (s *PostgresStore) Resume() (int64, error) {
	return s.Enqueue(models.CmdResume, nil)
}

func (s *PostgresStore) SyncNow() (int64, error) {
	return s.Enqueue(models.CmdSyncNow, nil)
}
