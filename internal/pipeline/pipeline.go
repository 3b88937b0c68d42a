// Package pipeline normalizes CRM companies and geocodes them in ordered,
// bounded batches.
package pipeline

import (
	"context"
	"iter"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/customer-map/internal/model"
	"github.com/sells-group/customer-map/pkg/geocode"
	"github.com/sells-group/customer-map/pkg/hubspot"
)

const (
	// DefaultBatchSize is the number of records geocoded concurrently.
	DefaultBatchSize = 10
	// DefaultMinAddressLen is the shortest composite address worth a lookup.
	DefaultMinAddressLen = 6
)

// Normalizer maps a CRM company to a customer.
type Normalizer interface {
	Normalize(c hubspot.Company) model.Customer
}

// Progress is reported once per completed batch.
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
	Geocoded  int `json:"geocoded"`
	Percent   int `json:"percent"`
}

// Batch is one completed group of records.
type Batch struct {
	Index     int
	Customers []model.Customer
	Progress  Progress
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize sets how many records are geocoded concurrently.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithMinAddressLen sets the shortest address sent to the geocoder.
func WithMinAddressLen(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.minAddressLen = n
		}
	}
}

// WithGeocoder sets the resolver. Without one, records pass through
// without coordinates.
func WithGeocoder(r geocode.Resolver) Option {
	return func(p *Pipeline) {
		p.geocoder = r
	}
}

// Pipeline drives normalization and geocoding over a CRM result set.
type Pipeline struct {
	normalizer    Normalizer
	geocoder      geocode.Resolver
	batchSize     int
	minAddressLen int
}

// New creates a Pipeline.
func New(n Normalizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		normalizer:    n,
		batchSize:     DefaultBatchSize,
		minAddressLen: DefaultMinAddressLen,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Batches lazily processes companies one batch at a time. Each batch is
// fully resolved before the next one starts. Ranging again re-runs the
// work from the start. Iteration stops early when ctx is done.
func (p *Pipeline) Batches(ctx context.Context, companies []hubspot.Company) iter.Seq[Batch] {
	return func(yield func(Batch) bool) {
		total := len(companies)
		geocoded := 0
		for i, start := 0, 0; start < total; i, start = i+1, start+p.batchSize {
			if ctx.Err() != nil {
				return
			}
			end := min(start+p.batchSize, total)

			customers := p.processBatch(ctx, companies[start:end])
			for _, c := range customers {
				if c.Geocoded() {
					geocoded++
				}
			}

			b := Batch{
				Index:     i,
				Customers: customers,
				Progress: Progress{
					Processed: end,
					Total:     total,
					Geocoded:  geocoded,
					Percent:   Percent(end, total),
				},
			}
			zap.L().Debug("pipeline: batch complete",
				zap.Int("batch", i),
				zap.Int("processed", end),
				zap.Int("total", total),
				zap.Int("geocoded", geocoded),
			)
			if !yield(b) {
				return
			}
		}
	}
}

// GeocodeAll runs every batch, calling onProgress after each, and returns
// the customers in input order. onProgress may be nil.
func (p *Pipeline) GeocodeAll(ctx context.Context, companies []hubspot.Company, onProgress func(Progress)) []model.Customer {
	out := make([]model.Customer, 0, len(companies))
	for b := range p.Batches(ctx, companies) {
		out = append(out, b.Customers...)
		if onProgress != nil {
			onProgress(b.Progress)
		}
	}
	return out
}

func (p *Pipeline) processBatch(ctx context.Context, companies []hubspot.Company) []model.Customer {
	out := make([]model.Customer, len(companies))
	var g errgroup.Group
	for i := range companies {
		g.Go(func() error {
			out[i] = p.processOne(ctx, companies[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Pipeline) processOne(ctx context.Context, company hubspot.Company) model.Customer {
	c := p.normalizer.Normalize(company)
	if p.geocoder == nil || len(c.Address) < p.minAddressLen {
		return c
	}
	if r := p.geocoder.Resolve(ctx, c.Address); r != nil {
		c.Coordinates = &model.Coordinates{Latitude: r.Latitude, Longitude: r.Longitude}
		c.GeocodeLabel = r.DisplayName
	}
	return c
}

// Percent returns processed/total as a rounded percentage clamped to [0, 100].
func Percent(processed, total int) int {
	if total <= 0 {
		return 100
	}
	pct := (processed*100 + total/2) / total
	return max(0, min(100, pct))
}
