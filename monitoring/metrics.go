package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the console's Prometheus instruments. Gauges mirror the
// read model's aggregate counts as of the last successful refresh.
type Metrics struct {
	RefreshTotal     prometheus.Counter
	RefreshErrors    prometheus.Counter
	CommandsEnqueued *prometheus.CounterVec
	PropertiesTotal  prometheus.Gauge
	SnapshotsTotal   prometheus.Gauge
	UnsyncedTotal    prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		RefreshTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "console_refresh_total",
			Help: "Read-model refresh ticks attempted",
		}),
		RefreshErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "console_refresh_errors_total",
			Help: "Refresh ticks that failed against the store",
		}),
		CommandsEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "console_commands_enqueued_total",
			Help: "Commands appended to the queue",
		}, []string{"command"}),
		PropertiesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "console_properties_total",
			Help: "Property count at last refresh",
		}),
		SnapshotsTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "console_snapshots_total",
			Help: "Snapshot count at last refresh",
		}),
		UnsyncedTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "console_properties_unsynced",
			Help: "Unsynced property count at last refresh",
		}),
	}
}
