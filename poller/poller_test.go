package poller

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"tct_console/config"
	"tct_console/monitoring"
	"tct_console/store"
)

// promauto registers against the default registry, so the metrics set is
// created once for the whole test binary.
var testMetrics = monitoring.New()

func newTestPoller(t *testing.T) (*Poller, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scraper.db")
	st := store.NewSQLiteStore(path)
	if err := st.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{DSN: path, RefreshInterval: 50 * time.Millisecond}
	return New(cfg, st, testMetrics), path
}

func rawDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRefreshPublishesCounts(t *testing.T) {
	p, path := newTestPoller(t)

	db := rawDB(t, path)
	if _, err := db.Exec(`
		INSERT INTO properties (id, normalized_address, city, beds, baths, sqft,
			property_type, first_seen_at, last_seen_at, times_listed, synced)
		VALUES ('p1', '1 elm st', 'windsor', 2, 1, 900, 'condo',
			'2025-06-01T12:00:00Z', '2025-06-01T12:00:00Z', 1, FALSE)`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := db.Exec(`
		INSERT INTO listing_snapshots (property_id, listing_id, site_id, url, price, data, scraped_at, run_id)
		VALUES ('p1', 'MLS-1', 'zillow', 'https://example.com', 450000, NULL, '2025-06-01T12:00:00Z', NULL)`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := p.refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if got := testutil.ToFloat64(testMetrics.PropertiesTotal); got != 1 {
		t.Fatalf("expected properties gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(testMetrics.SnapshotsTotal); got != 1 {
		t.Fatalf("expected snapshots gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(testMetrics.UnsyncedTotal); got != 1 {
		t.Fatalf("expected unsynced gauge 1, got %v", got)
	}
}

func TestRunRuleEnqueuesCommand(t *testing.T) {
	p, path := newTestPoller(t)

	p.runRule(config.AutomationRule{
		Name:    "zillow-6h",
		Cron:    "0 */6 * * *",
		Command: "scrape_site",
		Site:    "zillow",
	})

	db := rawDB(t, path)
	var command, params string
	err := db.QueryRow(`SELECT command, params FROM commands ORDER BY id DESC LIMIT 1`).
		Scan(&command, &params)
	if err != nil {
		t.Fatalf("read command: %v", err)
	}
	if command != "scrape_site" {
		t.Fatalf("expected scrape_site, got %s", command)
	}
	var decoded struct {
		Site string `json:"site"`
	}
	if err := json.Unmarshal([]byte(params), &decoded); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if decoded.Site != "zillow" {
		t.Fatalf("expected site zillow, got %s", decoded.Site)
	}
}

func TestRunRuleRejectsBadCommand(t *testing.T) {
	p, path := newTestPoller(t)

	// Must log and move on, never write a row.
	p.runRule(config.AutomationRule{Name: "broken", Cron: "* * * * *", Command: "explode"})

	db := rawDB(t, path)
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM commands`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no rows for rejected rule, got %d", count)
	}
}

func TestStartRejectsInvalidCron(t *testing.T) {
	p, _ := newTestPoller(t)
	p.cfg.Automation = []config.AutomationRule{
		{Name: "bad", Cron: "not a schedule", Command: "scrape_now"},
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := p.Start(ctx); err == nil {
		p.Stop()
		t.Fatal("expected error for invalid cron expression")
	}
}
