// Package monitoring evaluates sync health and posts alerts to a webhook.
package monitoring

import (
	"time"

	"github.com/sells-group/customer-map/internal/orchestrator"
)

// Snapshot holds a point-in-time view of sync health.
type Snapshot struct {
	CRMConnected bool       `json:"crm_connected"`
	CRMLastSync  *time.Time `json:"crm_last_sync,omitempty"`
	CRMLastError string     `json:"crm_last_error,omitempty"`
	CRMRecords   int        `json:"crm_records"`

	ViewTotal       int     `json:"view_total"`
	ViewGeocoded    int     `json:"view_geocoded"`
	GeocodeCoverage float64 `json:"geocode_coverage"`

	Syncing     bool      `json:"syncing"`
	CollectedAt time.Time `json:"collected_at"`
}

// StatusSource reports orchestrator status.
type StatusSource interface {
	Status() orchestrator.Status
}

// Collector snapshots orchestrator status.
type Collector struct {
	source StatusSource
	now    func() time.Time
}

// NewCollector creates a new collector.
func NewCollector(source StatusSource) *Collector {
	return &Collector{source: source, now: time.Now}
}

// Collect returns the current snapshot.
func (c *Collector) Collect() *Snapshot {
	st := c.source.Status()
	crm := st.Sources[orchestrator.SourceHubSpot]

	return &Snapshot{
		CRMConnected:    crm.Connected,
		CRMLastSync:     crm.LastSync,
		CRMLastError:    crm.LastError,
		CRMRecords:      crm.RecordCount,
		ViewTotal:       st.Summary.Total,
		ViewGeocoded:    st.Summary.Geocoded,
		GeocodeCoverage: st.Summary.Coverage(),
		Syncing:         st.Syncing,
		CollectedAt:     c.now().UTC(),
	}
}
