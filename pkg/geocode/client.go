// Package geocode resolves free-text addresses to coordinates through a
// Nominatim-compatible search service, throttled and cached.
package geocode

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Resolver resolves an address to coordinates. A nil result means the
// address could not be resolved.
type Resolver interface {
	Resolve(ctx context.Context, address string) *Result
}

// Result holds the top candidate for an address.
type Result struct {
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lng"`
	DisplayName string  `json:"display_name"`
}

// Lookup outcomes reported to a Recorder.
const (
	OutcomeHit        = "hit"
	OutcomeResolved   = "resolved"
	OutcomeUnresolved = "unresolved"
	OutcomeError      = "error"
)

// Recorder receives one outcome per Resolve call that reaches the cache.
type Recorder interface {
	GeocodeLookup(outcome string)
}

const (
	defaultMinDelay    = time.Second
	defaultTimeout     = 10 * time.Second
	defaultUserAgent   = "Edlio Customer Map Geocoder"
	defaultCountryCode = "us"
)

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL points the client at a different search host.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithUserAgent sets the client identifier sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithCountryCodes restricts lookups to the given comma-separated ISO codes.
func WithCountryCodes(codes string) Option {
	return func(c *Client) {
		if codes != "" {
			c.countryCodes = codes
		}
	}
}

// WithMinDelay sets the minimum interval between outbound requests.
// A non-positive delay disables throttling.
func WithMinDelay(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithRecorder reports lookup outcomes, typically to metrics.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// Client resolves addresses through the cache first and the search service
// second. One limiter is shared by every caller, so concurrent Resolve calls
// still respect the service's request rate.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	userAgent    string
	countryCodes string
	limiter      *rate.Limiter
	cache        *Cache
	recorder     Recorder
	flights      singleflight.Group
}

// NewClient creates a Client backed by cache. A nil cache is replaced by an
// in-memory one.
func NewClient(cache *Cache, opts ...Option) *Client {
	if cache == nil {
		cache = LoadCache(context.Background(), nil)
	}
	c := &Client{
		httpClient:   &http.Client{Timeout: defaultTimeout},
		baseURL:      nominatimBaseURL,
		userAgent:    defaultUserAgent,
		countryCodes: defaultCountryCode,
		limiter:      rate.NewLimiter(rate.Every(defaultMinDelay), 1),
		cache:        cache,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache returns the client's cache.
func (c *Client) Cache() *Cache {
	return c.cache
}

// Resolve returns coordinates for address, or nil. Lookup failures are
// cached as negative results and logged, never returned.
func (c *Client) Resolve(ctx context.Context, address string) *Result {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return nil
	}

	if r, ok := c.cache.Lookup(addr); ok {
		c.observe(OutcomeHit)
		return r
	}

	// Concurrent callers asking for the same address share one request. A
	// shared lookup abandoned by the caller that started it runs again under
	// the next caller's context.
	for {
		ch := c.flights.DoChan(addr, func() (any, error) {
			if r, ok := c.cache.Lookup(addr); ok {
				c.observe(OutcomeHit)
				return r, nil
			}
			return c.resolveUncached(ctx, addr)
		})

		select {
		case <-ctx.Done():
			return nil
		case res := <-ch:
			if errors.Is(res.Err, errLookupCancelled) {
				if ctx.Err() != nil {
					return nil
				}
				continue
			}
			r, _ := res.Val.(*Result)
			if r == nil {
				return nil
			}
			cp := *r
			return &cp
		}
	}
}

var errLookupCancelled = errors.New("geocode: lookup cancelled")

func (c *Client) resolveUncached(ctx context.Context, addr string) (*Result, error) {
	result, err := c.search(ctx, addr)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled before an answer arrived; the address may still resolve later.
			zap.L().Debug("geocode: lookup cancelled", zap.String("address", addr), zap.Error(err))
			return nil, errLookupCancelled
		}
		zap.L().Warn("geocode: lookup failed", zap.String("address", addr), zap.Error(err))
		c.observe(OutcomeError)
		result = nil
	} else if result == nil {
		c.observe(OutcomeUnresolved)
	} else {
		c.observe(OutcomeResolved)
	}

	if storeErr := c.cache.Store(context.WithoutCancel(ctx), addr, result); storeErr != nil {
		zap.L().Warn("geocode: cache write failed", zap.String("address", addr), zap.Error(storeErr))
	}
	return result, nil
}

func (c *Client) observe(outcome string) {
	if c.recorder != nil {
		c.recorder.GeocodeLookup(outcome)
	}
}
