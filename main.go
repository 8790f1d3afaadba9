package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tct_console/config"
	"tct_console/logging"
	"tct_console/monitoring"
	"tct_console/poller"
	"tct_console/store"
)

var (
	scrapeNow  = flag.Bool("scrape", false, "Enqueue scrape_now and exit")
	scrapeSite = flag.String("site", "", "Enqueue scrape_site for the given site and exit")
	pause      = flag.Bool("pause", false, "Enqueue pause and exit")
	resume     = flag.Bool("resume", false, "Enqueue resume and exit")
	syncNow    = flag.Bool("sync", false, "Enqueue sync_now and exit")
	status     = flag.Bool("status", false, "Print store status and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("console.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	st := store.Open(cfg.DSN)
	defer st.Close()
	log.Printf("Store: %s", cfg.DSN)

	if done := runOneShot(st); done {
		return
	}

	// Daemon mode
	metrics := monitoring.New()
	p := poller.New(cfg, st, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		log.Fatalf("Failed to start poller: %v", err)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			log.Printf("Metrics on %s/metrics", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	log.Printf("Console running, refresh every %s. Press Ctrl+C to stop.", cfg.RefreshInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	p.Stop()
}

// runOneShot handles the enqueue/status flags; returns true when a flag
// was handled and the process should exit.
func runOneShot(st store.Store) bool {
	enqueue := func(name string, fn func() (int64, error)) {
		id, err := fn()
		if err != nil {
			log.Fatalf("Failed to enqueue %s: %v", name, err)
		}
		log.Printf("Enqueued %s (id %d)", name, id)
	}

	switch {
	case *scrapeNow:
		enqueue("scrape_now", st.ScrapeNow)
	case *scrapeSite != "":
		enqueue("scrape_site", func() (int64, error) { return st.ScrapeSite(*scrapeSite) })
	case *pause:
		enqueue("pause", st.Pause)
	case *resume:
		enqueue("resume", st.Resume)
	case *syncNow:
		enqueue("sync_now", st.SyncNow)
	case *status:
		printStatus(st)
	default:
		return false
	}
	return true
}

func printStatus(st store.Store) {
	stats, err := st.SiteStats()
	if err != nil {
		log.Fatalf("Failed to read site stats: %v", err)
	}
	properties, err := st.PropertyCount()
	if err != nil {
		log.Fatalf("Failed to count properties: %v", err)
	}
	snapshots, err := st.SnapshotCount()
	if err != nil {
		log.Fatalf("Failed to count snapshots: %v", err)
	}
	unsynced, err := st.UnsyncedCount()
	if err != nil {
		log.Fatalf("Failed to count unsynced: %v", err)
	}

	log.Printf("%d properties (%d unsynced), %d snapshots", properties, unsynced, snapshots)
	for _, s := range stats {
		lastRun := "never"
		if s.LastRunAt != nil {
			lastRun = s.LastRunAt.Format("2006-01-02 15:04")
		}
		statusStr := "-"
		if s.LastRunStatus != nil {
			statusStr = *s.LastRunStatus
		}
		log.Printf("  %s: last run %s (%s), %d properties, %d snapshots, %.0f%% success",
			s.SiteID, lastRun, statusStr, s.TotalProperties, s.TotalSnapshots, s.SuccessRate*100)
	}
}
