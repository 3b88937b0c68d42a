package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sells-group/customer-map/internal/customer"
	"github.com/sells-group/customer-map/internal/model"
	"github.com/sells-group/customer-map/internal/orchestrator"
)

func disconnectedStatus() *fakeStatus {
	return &fakeStatus{status: orchestrator.Status{
		Sources: map[string]model.SourceStatus{
			orchestrator.SourceHubSpot: {LastError: "hubspot: status 503"},
		},
		Summary: customer.Summary{Total: 4, Geocoded: 4},
	}}
}

func TestChecker_Check_SendsAlerts(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := testMonitoringConfig()
	cfg.WebhookURL = srv.URL
	c := NewChecker(NewCollector(disconnectedStatus()), NewAlerter(cfg), cfg)

	sent := c.check(context.Background(), zap.NewNop())
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_Check_DefersWhileSyncing(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
	}))
	defer srv.Close()

	src := disconnectedStatus()
	src.status.Syncing = true

	cfg := testMonitoringConfig()
	cfg.WebhookURL = srv.URL
	c := NewChecker(NewCollector(src), NewAlerter(cfg), cfg)

	assert.Zero(t, c.check(context.Background(), zap.NewNop()))
	assert.Zero(t, received.Load())
}

func TestChecker_Check_Healthy(t *testing.T) {
	last := time.Now().UTC()
	src := &fakeStatus{status: orchestrator.Status{
		Sources: map[string]model.SourceStatus{
			orchestrator.SourceHubSpot: {Connected: true, LastSync: &last},
		},
		Summary: customer.Summary{Total: 2, Geocoded: 2},
	}}
	cfg := testMonitoringConfig()
	c := NewChecker(NewCollector(src), NewAlerter(cfg), cfg)

	assert.Zero(t, c.check(context.Background(), zap.NewNop()))
}

func TestChecker_Run_TicksAndStops(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
	}))
	defer srv.Close()

	cfg := testMonitoringConfig()
	cfg.WebhookURL = srv.URL
	c := NewChecker(NewCollector(disconnectedStatus()), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.run(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return received.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop after cancel")
	}
}

func TestChecker_Run_DefaultInterval(t *testing.T) {
	cfg := testMonitoringConfig()
	cfg.CheckIntervalSecs = 0
	c := NewChecker(NewCollector(&fakeStatus{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return for cancelled context")
	}
}

func TestChecker_Check_SendsOncePerCondition(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
	}))
	defer srv.Close()

	src := disconnectedStatus()
	cfg := testMonitoringConfig()
	cfg.WebhookURL = srv.URL
	c := NewChecker(NewCollector(src), NewAlerter(cfg), cfg)
	log := zap.NewNop()

	assert.Equal(t, 1, c.check(context.Background(), log))
	assert.Zero(t, c.check(context.Background(), log))
	assert.Equal(t, []AlertType{AlertCRMDisconnected}, c.Active())

	// Condition clears.
	last := time.Now().UTC()
	src.status.Sources[orchestrator.SourceHubSpot] = model.SourceStatus{Connected: true, LastSync: &last}
	assert.Zero(t, c.check(context.Background(), log))
	assert.Empty(t, c.Active())

	// And returns.
	src.status.Sources[orchestrator.SourceHubSpot] = model.SourceStatus{LastError: "hubspot: status 502"}
	assert.Equal(t, 1, c.check(context.Background(), log))
	assert.Equal(t, int32(2), received.Load())
}
