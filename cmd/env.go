package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/customer-map/internal/config"
	"github.com/sells-group/customer-map/internal/metrics"
	"github.com/sells-group/customer-map/internal/normalize"
	"github.com/sells-group/customer-map/internal/orchestrator"
	"github.com/sells-group/customer-map/internal/pipeline"
	"github.com/sells-group/customer-map/internal/proxy"
	"github.com/sells-group/customer-map/internal/seed"
	"github.com/sells-group/customer-map/internal/store"
	"github.com/sells-group/customer-map/pkg/geocode"
	"github.com/sells-group/customer-map/pkg/hubspot"
)

// appEnv holds the initialized store, clients, and orchestrator shared by
// the serve and sync commands.
type appEnv struct {
	Store        store.KV
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Geocoder     *geocode.Client
	Proxy        *proxy.Handler
	Orchestrator *orchestrator.Orchestrator
	SyncTimeout  time.Duration

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// initEnv validates the config for mode and opens the store, metrics
// registry, and geocoder. Callers should defer env.Close().
func initEnv(ctx context.Context, c *config.Config, mode string) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &appEnv{Store: st}
	env.closers = append(env.closers, func() { _ = st.Close() })

	env.Registry = prometheus.NewRegistry()
	env.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	env.Metrics = metrics.New(env.Registry)

	env.Geocoder = newGeocoder(ctx, c.Geocode, st, env.Metrics)
	return env, nil
}

// initStore opens the configured KV store.
func initStore(ctx context.Context, sc config.StoreConfig) (store.KV, error) {
	switch sc.Driver {
	case config.DriverSQLite:
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "customer-map.db"
		}
		return store.NewSQLite(dsn)
	case config.DriverPostgres:
		return store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
	case config.DriverMemory:
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

func newGeocoder(ctx context.Context, gc config.GeocodeConfig, kv store.KV, rec geocode.Recorder) *geocode.Client {
	cache := geocode.LoadCache(ctx, kv)
	opts := []geocode.Option{
		geocode.WithRecorder(rec),
		geocode.WithMinDelay(gc.MinDelay()),
	}
	if gc.BaseURL != "" {
		opts = append(opts, geocode.WithBaseURL(gc.BaseURL))
	}
	if gc.UserAgent != "" {
		opts = append(opts, geocode.WithUserAgent(gc.UserAgent))
	}
	if gc.CountryCodes != "" {
		opts = append(opts, geocode.WithCountryCodes(gc.CountryCodes))
	}
	if gc.TimeoutSecs > 0 {
		opts = append(opts, geocode.WithHTTPClient(&http.Client{
			Timeout: time.Duration(gc.TimeoutSecs) * time.Second,
		}))
	}
	return geocode.NewClient(cache, opts...)
}

// initOrchestrator builds the proxy, CRM client, pipeline, and orchestrator.
// When no proxy URL is configured the proxy is served on a loopback
// listener owned by env.
func (e *appEnv) initOrchestrator(c *config.Config) error {
	e.Proxy = proxy.New(c.HubSpot.BaseURL, c.HubSpot.APIKey,
		proxy.WithTimeout(time.Duration(c.HubSpot.TimeoutSecs)*time.Second),
	)

	proxyURL := c.HubSpot.ProxyURL
	if proxyURL == "" {
		u, shutdown, err := startLocalProxy(e.Proxy.Router())
		if err != nil {
			return err
		}
		e.closers = append(e.closers, shutdown)
		proxyURL = u
	}

	crm := hubspot.NewClient(proxyURL,
		hubspot.WithPageLimit(c.HubSpot.PageLimit),
		hubspot.WithMaxPages(c.HubSpot.MaxPages),
		hubspot.WithRateLimit(c.HubSpot.RateLimit),
		hubspot.WithHTTPClient(&http.Client{
			Timeout: time.Duration(c.HubSpot.TimeoutSecs) * time.Second,
		}),
	)

	pipeOpts := []pipeline.Option{
		pipeline.WithBatchSize(c.Sync.BatchSize),
		pipeline.WithMinAddressLen(c.Geocode.MinAddressLen),
	}
	if c.Sync.GeocodeLive {
		pipeOpts = append(pipeOpts, pipeline.WithGeocoder(e.Geocoder))
	}
	pipe := pipeline.New(normalize.New(), pipeOpts...)

	e.SyncTimeout = c.Sync.Timeout()
	e.Orchestrator = orchestrator.New(crm, seed.NewLoader(c.Seed.Path), pipe, e.Store,
		orchestrator.WithInterval(c.Sync.Interval()),
		orchestrator.WithSyncTimeout(e.SyncTimeout),
		orchestrator.WithRecorder(e.Metrics),
	)
	e.closers = append(e.closers, e.Orchestrator.Stop)
	return nil
}

// startLocalProxy serves h at /api/hubspot on a loopback port and returns
// the endpoint URL and a shutdown func.
func startLocalProxy(h http.Handler) (string, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, eris.Wrap(err, "listen local proxy")
	}

	r := chi.NewRouter()
	r.Mount("/api/hubspot", h)
	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("local proxy stopped", zap.Error(err))
		}
	}()

	u := "http://" + ln.Addr().String() + "/api/hubspot"
	zap.L().Debug("local proxy listening", zap.String("url", u))

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return u, shutdown, nil
}
