// Package api serves the customer view, sync controls, and the CRM proxy over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/customer-map/internal/model"
	"github.com/sells-group/customer-map/internal/orchestrator"
)

// Service is the orchestrator surface the API needs.
type Service interface {
	View() []model.Customer
	Status() orchestrator.Status
	SyncNow(ctx context.Context) (*orchestrator.SyncResult, error)
	SetAPIKey(ctx context.Context, key string) error
	ClearAPIKey(ctx context.Context) error
}

// Option configures the router.
type Option func(*serverConfig)

type serverConfig struct {
	proxy       http.Handler
	gatherer    prometheus.Gatherer
	syncTimeout time.Duration
}

const defaultSyncTimeout = 10 * time.Minute

// WithProxy mounts the CRM proxy at /api/hubspot.
func WithProxy(h http.Handler) Option {
	return func(cfg *serverConfig) {
		cfg.proxy = h
	}
}

// WithMetrics serves the gatherer at /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(cfg *serverConfig) {
		cfg.gatherer = g
	}
}

// WithSyncTimeout bounds a manual sync. The sync outlives the request that
// started it, so a client disconnect does not abort it.
func WithSyncTimeout(d time.Duration) Option {
	return func(cfg *serverConfig) {
		if d > 0 {
			cfg.syncTimeout = d
		}
	}
}

// NewRouter builds the HTTP routes for svc.
func NewRouter(svc Service, opts ...Option) chi.Router {
	cfg := &serverConfig{syncTimeout: defaultSyncTimeout}
	for _, opt := range opts {
		opt(cfg)
	}

	h := &handlers{svc: svc, syncTimeout: cfg.syncTimeout}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware)

	r.Get("/health", h.health)

	if cfg.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/customers", h.listCustomers)
		r.Get("/customers.geojson", h.customersGeoJSON)
		r.Get("/status", h.status)
		r.Post("/sync", h.sync)
		r.Put("/apikey", h.setAPIKey)
		r.Delete("/apikey", h.clearAPIKey)

		if cfg.proxy != nil {
			r.Mount("/hubspot", cfg.proxy)
		}
	})

	return r
}

// LoggingMiddleware logs each request at debug level.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
