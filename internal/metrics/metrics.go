// Package metrics exposes Prometheus instruments for the sync service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "customer_map"

// Sync run results.
const (
	SyncOK      = "ok"
	SyncFailed  = "failed"
	SyncSkipped = "skipped"
)

// Metrics holds the service instruments.
type Metrics struct {
	GeocodeLookups *prometheus.CounterVec
	SyncRuns       *prometheus.CounterVec
	SyncDuration   prometheus.Histogram
	ViewRecords    prometheus.Gauge
	SourceUp       *prometheus.GaugeVec
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GeocodeLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_lookups_total",
			Help:      "Geocode resolutions by outcome.",
		}, []string{"outcome"}), // outcome: hit, resolved, unresolved, error
		SyncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Sync cycles by result.",
		}, []string{"result"}),
		SyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall-clock duration of completed sync cycles.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		ViewRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "view_records",
			Help:      "Records in the published customer view.",
		}),
		SourceUp: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_connected",
			Help:      "1 when the upstream source answered its last sync.",
		}, []string{"source"}),
	}
}

// GeocodeLookup counts one geocode resolution.
func (m *Metrics) GeocodeLookup(outcome string) {
	m.GeocodeLookups.WithLabelValues(outcome).Inc()
}

// SyncRun records a sync cycle. Duration is observed for completed runs only.
func (m *Metrics) SyncRun(result string, d time.Duration) {
	m.SyncRuns.WithLabelValues(result).Inc()
	if result != SyncSkipped {
		m.SyncDuration.Observe(d.Seconds())
	}
}

// ViewSize sets the published view size.
func (m *Metrics) ViewSize(n int) {
	m.ViewRecords.Set(float64(n))
}

// SourceConnected sets the connection gauge for a source.
func (m *Metrics) SourceConnected(source string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.SourceUp.WithLabelValues(source).Set(v)
}
