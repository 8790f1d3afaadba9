package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"tct_console/config"
	"tct_console/models"
	"tct_console/monitoring"
	"tct_console/store"
)

// Poller drives the console's cooperative loop: a periodic read-model
// refresh plus cron-scheduled command enqueues. Every store call happens
// inline on the tick; the store's own lock wait bound keeps a tick from
// stalling indefinitely.
type Poller struct {
	cfg     *config.Config
	store   store.Store
	metrics *monitoring.Metrics
	cron    *cron.Cron
	ticker  *time.Ticker
	stopCh  chan struct{}

	lastProperties int
	lastSnapshots  int
	lastUnsynced   int
	seeded         bool
}

func New(cfg *config.Config, st store.Store, m *monitoring.Metrics) *Poller {
	return &Poller{
		cfg:     cfg,
		store:   st,
		metrics: m,
		cron:    cron.New(),
		stopCh:  make(chan struct{}),
	}
}

func (p *Poller) Start(ctx context.Context) error {
	for _, rule := range p.cfg.Automation {
		rule := rule
		_, err := p.cron.AddFunc(rule.Cron, func() { p.runRule(rule) })
		if err != nil {
			return fmt.Errorf("rule %s: invalid cron expression: %w", rule.Name, err)
		}
		log.Printf("Automation rule %s: %s -> %s", rule.Name, rule.Cron, rule.Command)
	}
	if len(p.cfg.Automation) > 0 {
		p.cron.Start()
	}

	p.ticker = time.NewTicker(p.cfg.RefreshInterval)
	go p.loop(ctx)
	return nil
}

func (p *Poller) Stop() {
	p.cron.Stop()
	if p.ticker != nil {
		p.ticker.Stop()
	}
	close(p.stopCh)
}

func (p *Poller) loop(ctx context.Context) {
	for {
		select {
		case <-p.ticker.C:
			p.metrics.RefreshTotal.Inc()
			if err := p.refresh(); err != nil {
				p.metrics.RefreshErrors.Inc()
				if errors.Is(err, store.ErrBusy) {
					log.Printf("Refresh skipped, store busy: %v", err)
				} else {
					log.Printf("Refresh error: %v", err)
				}
			}
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// refresh polls the aggregate counts and publishes them; results are never
// cached past the tick. A failed tick leaves the previous gauges standing
// and reports the error, so staleness is visible rather than read as zero.
func (p *Poller) refresh() error {
	properties, err := p.store.PropertyCount()
	if err != nil {
		return fmt.Errorf("property count: %w", err)
	}
	snapshots, err := p.store.SnapshotCount()
	if err != nil {
		return fmt.Errorf("snapshot count: %w", err)
	}
	unsynced, err := p.store.UnsyncedCount()
	if err != nil {
		return fmt.Errorf("unsynced count: %w", err)
	}

	p.metrics.PropertiesTotal.Set(float64(properties))
	p.metrics.SnapshotsTotal.Set(float64(snapshots))
	p.metrics.UnsyncedTotal.Set(float64(unsynced))

	if !p.seeded || properties != p.lastProperties ||
		snapshots != p.lastSnapshots || unsynced != p.lastUnsynced {
		stats, err := p.store.SiteStats()
		if err != nil {
			return fmt.Errorf("site stats: %w", err)
		}
		log.Printf("Store: %d sites, %d properties (%d unsynced), %d snapshots",
			len(stats), properties, unsynced, snapshots)
	}

	p.lastProperties = properties
	p.lastSnapshots = snapshots
	p.lastUnsynced = unsynced
	p.seeded = true
	return nil
}

func (p *Poller) runRule(rule config.AutomationRule) {
	var params *models.CommandParams
	if rule.Site != "" {
		params = &models.CommandParams{Site: rule.Site}
	}

	id, err := p.store.Enqueue(models.CommandType(rule.Command), params)
	if err != nil {
		log.Printf("Automation rule %s failed: %v", rule.Name, err)
		return
	}
	p.metrics.CommandsEnqueued.WithLabelValues(rule.Command).Inc()
	log.Printf("Automation rule %s enqueued %s (id %d)", rule.Name, rule.Command, id)
}
