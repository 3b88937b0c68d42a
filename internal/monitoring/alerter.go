package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/customer-map/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCRMDisconnected    AlertType = "crm_disconnected"
	AlertSyncStale          AlertType = "sync_stale"
	AlertLowGeocodeCoverage AlertType = "low_geocode_coverage"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// CRM unreachable on the last attempt.
	if !snap.CRMConnected && snap.CRMLastError != "" {
		alerts = append(alerts, Alert{
			Type:     AlertCRMDisconnected,
			Severity: "high",
			Message:  "CRM is unreachable; serving the last known view",
			Details: map[string]any{
				"error":   snap.CRMLastError,
				"records": snap.ViewTotal,
			},
			Timestamp: now,
		})
	}

	// No successful sync within the staleness window.
	staleAfter := time.Duration(a.cfg.StaleAfterSecs) * time.Second
	if staleAfter > 0 && snap.CRMLastSync != nil {
		if age := now.Sub(*snap.CRMLastSync); age > staleAfter {
			alerts = append(alerts, Alert{
				Type:     AlertSyncStale,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Last successful sync was %s ago (threshold %s)",
					age.Round(time.Second), staleAfter,
				),
				Details: map[string]any{
					"last_sync":       snap.CRMLastSync.Format(time.RFC3339),
					"stale_after_sec": a.cfg.StaleAfterSecs,
				},
				Timestamp: now,
			})
		}
	}

	// Too few records can be placed on the map.
	if a.cfg.MinGeocodeCoverage > 0 && snap.ViewTotal > 0 && snap.GeocodeCoverage < a.cfg.MinGeocodeCoverage {
		alerts = append(alerts, Alert{
			Type:     AlertLowGeocodeCoverage,
			Severity: "low",
			Message: fmt.Sprintf(
				"Geocode coverage %.1f%% is below threshold %.1f%% (%d of %d records)",
				snap.GeocodeCoverage*100, a.cfg.MinGeocodeCoverage*100,
				snap.ViewGeocoded, snap.ViewTotal,
			),
			Details: map[string]any{
				"coverage":  snap.GeocodeCoverage,
				"threshold": a.cfg.MinGeocodeCoverage,
				"geocoded":  snap.ViewGeocoded,
				"total":     snap.ViewTotal,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
