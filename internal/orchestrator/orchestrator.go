// Package orchestrator owns the published customer view and drives the
// fetch, geocode, and merge cycle on demand and on a schedule.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/customer-map/internal/customer"
	"github.com/sells-group/customer-map/internal/metrics"
	"github.com/sells-group/customer-map/internal/model"
	"github.com/sells-group/customer-map/internal/pipeline"
	"github.com/sells-group/customer-map/internal/store"
	"github.com/sells-group/customer-map/pkg/hubspot"
)

// ErrSyncInProgress is returned when a sync is requested while another runs.
var ErrSyncInProgress = errors.New("orchestrator: sync already in progress")

// Source names used in Status.
const (
	SourceHubSpot = "hubspot"
	SourceSeed    = "seed"
)

const (
	defaultInterval = 5 * time.Minute
	defaultTimeout  = 10 * time.Minute
)

// CRM lists companies from the live source.
type CRM interface {
	ListCompanies(ctx context.Context, token string) ([]hubspot.Company, error)
}

// SeedSource loads the curated seed set.
type SeedSource interface {
	Load(ctx context.Context) ([]model.Customer, error)
}

// Processor normalizes and geocodes CRM companies.
type Processor interface {
	GeocodeAll(ctx context.Context, companies []hubspot.Company, onProgress func(pipeline.Progress)) []model.Customer
}

// Recorder receives sync telemetry.
type Recorder interface {
	SyncRun(result string, d time.Duration)
	ViewSize(n int)
	SourceConnected(source string, up bool)
}

// SyncResult describes one completed sync cycle.
type SyncResult struct {
	RunID    string           `json:"run_id"`
	Started  time.Time        `json:"started"`
	Duration time.Duration    `json:"duration_ns"`
	Fetched  int              `json:"fetched"`
	Merged   int              `json:"merged"`
	Geocoded int              `json:"geocoded"`
	Summary  customer.Summary `json:"summary"`
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Sources        map[string]model.SourceStatus `json:"sources"`
	Summary        customer.Summary              `json:"summary"`
	Syncing        bool                          `json:"syncing"`
	Progress       *pipeline.Progress            `json:"progress,omitempty"`
	LastRun        *SyncResult                   `json:"last_run,omitempty"`
	APIKeyOverride bool                          `json:"api_key_override"`
	Interval       string                        `json:"interval"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithInterval sets the periodic resync interval.
func WithInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithSyncTimeout bounds each periodic sync.
func WithSyncTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRecorder sets the telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator is the single writer of the customer view. Readers get
// immutable snapshots.
type Orchestrator struct {
	crm      CRM
	seed     SeedSource
	proc     Processor
	kv       store.KV
	recorder Recorder
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	running atomic.Bool
	view    atomic.Pointer[[]model.Customer]

	mu       sync.RWMutex
	seedSet  []model.Customer
	apiKey   string
	sources  map[string]model.SourceStatus
	lastRun  *SyncResult
	progress *pipeline.Progress

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an Orchestrator. A nil kv keeps the API key override in memory.
func New(crm CRM, seed SeedSource, proc Processor, kv store.KV, opts ...Option) *Orchestrator {
	if kv == nil {
		kv = store.NewMemory()
	}
	o := &Orchestrator{
		crm:      crm,
		seed:     seed,
		proc:     proc,
		kv:       kv,
		recorder: noopRecorder{},
		interval: defaultInterval,
		timeout:  defaultTimeout,
		now:      time.Now,
		sources: map[string]model.SourceStatus{
			SourceHubSpot: {},
			SourceSeed:    {},
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	empty := []model.Customer{}
	o.view.Store(&empty)
	return o
}

// Initialize loads the API key override and the seed set, runs one sync,
// starts the periodic resync, and returns the resulting view. A failed
// sync is logged; the seed view is published regardless.
func (o *Orchestrator) Initialize(ctx context.Context) []model.Customer {
	o.LoadAPIKey(ctx)
	if err := o.LoadSeed(ctx); err != nil {
		zap.L().Error("orchestrator: seed load failed, continuing without seed", zap.Error(err))
	}

	if _, err := o.SyncNow(ctx); err != nil {
		zap.L().Warn("orchestrator: initial sync failed, serving seed view", zap.Error(err))
	}

	o.Start(ctx)
	return o.View()
}

// LoadSeed refreshes the seed set. Until a sync succeeds, the view is the
// seed set.
func (o *Orchestrator) LoadSeed(ctx context.Context) error {
	seed, err := o.seed.Load(ctx)
	if err != nil {
		o.setSource(SourceSeed, func(s *model.SourceStatus) {
			s.Connected = false
			s.LastError = err.Error()
		})
		return eris.Wrap(err, "orchestrator: load seed")
	}

	ts := o.now().UTC()
	o.mu.Lock()
	o.seedSet = seed
	o.mu.Unlock()
	o.setSource(SourceSeed, func(s *model.SourceStatus) {
		s.Connected = true
		s.LastSync = &ts
		s.RecordCount = len(seed)
		s.LastError = ""
	})

	o.mu.RLock()
	synced := o.lastRun != nil
	o.mu.RUnlock()
	if !synced {
		o.publish(customer.Merge(nil, seed))
	}
	return nil
}

// SyncNow runs one fetch, geocode, and merge cycle. On success the view is
// replaced atomically. On failure the view is left untouched. A concurrent
// call returns ErrSyncInProgress without waiting.
func (o *Orchestrator) SyncNow(ctx context.Context) (*SyncResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		o.recorder.SyncRun(metrics.SyncSkipped, 0)
		return nil, ErrSyncInProgress
	}
	defer o.running.Store(false)

	started := o.now()
	runID := uuid.NewString()
	log := zap.L().With(zap.String("component", "orchestrator"), zap.String("run_id", runID))
	log.Info("sync started")

	companies, err := o.crm.ListCompanies(ctx, o.currentAPIKey())
	if err != nil {
		o.fail(SourceHubSpot, started, err)
		log.Warn("sync: fetch failed, keeping current view", zap.Error(err))
		return nil, eris.Wrap(err, "orchestrator: fetch companies")
	}

	live := o.proc.GeocodeAll(ctx, companies, func(p pipeline.Progress) {
		o.mu.Lock()
		o.progress = &p
		o.mu.Unlock()
		log.Debug("sync progress",
			zap.Int("processed", p.Processed),
			zap.Int("total", p.Total),
			zap.Int("geocoded", p.Geocoded),
			zap.Int("percent", p.Percent),
		)
	})
	defer o.clearProgress()

	if err := ctx.Err(); err != nil {
		o.recorder.SyncRun(metrics.SyncFailed, o.now().Sub(started))
		log.Warn("sync: cancelled before merge, keeping current view", zap.Error(err))
		return nil, eris.Wrap(err, "orchestrator: sync interrupted")
	}

	merged := customer.Merge(live, o.seedSnapshot())
	o.publish(merged)

	finished := o.now()
	ts := finished.UTC()
	o.setSource(SourceHubSpot, func(s *model.SourceStatus) {
		s.Connected = true
		s.LastSync = &ts
		s.RecordCount = len(companies)
		s.LastError = ""
	})

	geocoded := 0
	for _, c := range live {
		if c.Geocoded() {
			geocoded++
		}
	}
	res := &SyncResult{
		RunID:    runID,
		Started:  started,
		Duration: finished.Sub(started),
		Fetched:  len(companies),
		Merged:   len(merged),
		Geocoded: geocoded,
		Summary:  customer.Summarize(merged),
	}
	o.mu.Lock()
	o.lastRun = res
	o.mu.Unlock()

	o.recorder.SyncRun(metrics.SyncOK, res.Duration)
	log.Info("sync complete",
		zap.Int("fetched", res.Fetched),
		zap.Int("merged", res.Merged),
		zap.Int("geocoded", res.Geocoded),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// View returns the current snapshot. Callers must not modify it.
func (o *Orchestrator) View() []model.Customer {
	return *o.view.Load()
}

// Status reports source health and view counts.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	sources := make(map[string]model.SourceStatus, len(o.sources))
	for k, v := range o.sources {
		sources[k] = v
	}
	st := Status{
		Sources:        sources,
		Summary:        customer.Summarize(o.View()),
		Syncing:        o.running.Load(),
		APIKeyOverride: o.apiKey != "",
		Interval:       o.interval.String(),
	}
	if o.progress != nil {
		p := *o.progress
		st.Progress = &p
	}
	if o.lastRun != nil {
		r := *o.lastRun
		st.LastRun = &r
	}
	return st
}

func (o *Orchestrator) publish(view []model.Customer) {
	o.view.Store(&view)
	o.recorder.ViewSize(len(view))
}

func (o *Orchestrator) fail(source string, started time.Time, err error) {
	o.setSource(source, func(s *model.SourceStatus) {
		s.Connected = false
		s.LastError = err.Error()
	})
	o.recorder.SyncRun(metrics.SyncFailed, o.now().Sub(started))
}

func (o *Orchestrator) setSource(name string, update func(*model.SourceStatus)) {
	o.mu.Lock()
	s := o.sources[name]
	update(&s)
	o.sources[name] = s
	o.mu.Unlock()
	o.recorder.SourceConnected(name, s.Connected)
}

func (o *Orchestrator) seedSnapshot() []model.Customer {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.seedSet
}

func (o *Orchestrator) clearProgress() {
	o.mu.Lock()
	o.progress = nil
	o.mu.Unlock()
}

// LoadAPIKey reads the persisted credential override. Read failures are
// logged and leave the override unset.
func (o *Orchestrator) LoadAPIKey(ctx context.Context) {
	v, ok, err := o.kv.Get(ctx, store.KeyHubSpotAPIKey)
	if err != nil {
		zap.L().Warn("orchestrator: read api key override", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	o.mu.Lock()
	o.apiKey = strings.TrimSpace(string(v))
	o.mu.Unlock()
}

// SetAPIKey persists a credential override used for subsequent fetches.
func (o *Orchestrator) SetAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return eris.New("orchestrator: api key is empty")
	}
	if err := o.kv.Put(ctx, store.KeyHubSpotAPIKey, []byte(key)); err != nil {
		return eris.Wrap(err, "orchestrator: persist api key")
	}
	o.mu.Lock()
	o.apiKey = key
	o.mu.Unlock()
	return nil
}

// ClearAPIKey removes the override so the proxy's own credential applies.
func (o *Orchestrator) ClearAPIKey(ctx context.Context) error {
	if err := o.kv.Delete(ctx, store.KeyHubSpotAPIKey); err != nil {
		return eris.Wrap(err, "orchestrator: delete api key")
	}
	o.mu.Lock()
	o.apiKey = ""
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) currentAPIKey() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.apiKey
}

type noopRecorder struct{}

func (noopRecorder) SyncRun(string, time.Duration) {}
func (noopRecorder) ViewSize(int)                  {}
func (noopRecorder) SourceConnected(string, bool)  {}
