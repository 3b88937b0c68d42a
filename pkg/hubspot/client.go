// Package hubspot lists CRM company objects through the authenticating proxy.
package hubspot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/customer-map/internal/resilience"
)

// CompaniesPath is the CRM resource listed by ListCompanies.
const CompaniesPath = "/crm/v3/objects/companies"

const (
	defaultPageLimit = 100 // CRM maximum per request
	defaultMaxPages  = 50
	defaultTimeout   = 30 * time.Second
	maxErrorBody     = 512
)

// ErrUnauthorized matches an *APIError whose credential was rejected.
var ErrUnauthorized = errors.New("hubspot: unauthorized")

// APIError is a non-2xx answer from the proxy or the CRM behind it.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return fmt.Sprintf("hubspot: status %d: %s", e.StatusCode, body)
}

// Unwrap exposes ErrUnauthorized for 401 answers.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

type listResponse struct {
	Results []Company `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets a per-second rate limit for page requests.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithPageLimit sets the page size requested from the CRM.
func WithPageLimit(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageLimit = n
		}
	}
}

// WithMaxPages caps how many pages one ListCompanies call follows.
func WithMaxPages(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithRetryPolicy overrides the retry policy for transient failures.
func WithRetryPolicy(p resilience.Policy) ClientOption {
	return func(c *Client) {
		c.retry = p
	}
}

// WithProperties overrides the requested property list.
func WithProperties(props []string) ClientOption {
	return func(c *Client) {
		if len(props) > 0 {
			c.properties = props
		}
	}
}

// Client fetches companies through the proxy endpoint.
type Client struct {
	proxyURL   string
	httpClient *http.Client
	limiter    *rate.Limiter
	pageLimit  int
	maxPages   int
	properties []string
	retry      resilience.Policy
}

// NewClient creates a Client for the proxy at proxyURL
// (for example http://localhost:8080/api/hubspot).
func NewClient(proxyURL string, opts ...ClientOption) *Client {
	c := &Client{
		proxyURL:   proxyURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		pageLimit:  defaultPageLimit,
		maxPages:   defaultMaxPages,
		properties: DefaultProperties,
		retry:      resilience.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.LogRetries("hubspot", "list_companies")
	}
	return c
}

// ListCompanies returns every company, following paging cursors. An empty
// token sends no Authorization header so the proxy falls back to its own
// credential. A rejected credential is returned as an *APIError and is not
// retried.
func (c *Client) ListCompanies(ctx context.Context, token string) ([]Company, error) {
	var all []Company
	after := ""
	for page := 1; page <= c.maxPages; page++ {
		resp, err := resilience.Retry(ctx, c.retry, func(ctx context.Context) (*listResponse, error) {
			return c.fetchPage(ctx, token, after)
		})
		if err != nil {
			if apiErr, ok := asAPIError(err); ok {
				return nil, apiErr
			}
			return nil, eris.Wrapf(err, "hubspot: list companies page %d", page)
		}

		all = append(all, resp.Results...)
		if resp.Paging == nil || resp.Paging.Next == nil || resp.Paging.Next.After == "" {
			return all, nil
		}
		after = resp.Paging.Next.After
	}

	zap.L().Warn("hubspot: page cap reached, result truncated",
		zap.Int("max_pages", c.maxPages),
		zap.Int("companies", len(all)),
	)
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, token, after string) (*listResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "hubspot: rate limit")
		}
	}

	params := url.Values{
		"path":       {CompaniesPath},
		"limit":      {strconv.Itoa(c.pageLimit)},
		"properties": {strings.Join(c.properties, ",")},
	}
	if after != "" {
		params.Set("after", after)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.proxyURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "hubspot: build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := eris.Wrap(err, "hubspot: request")
		if resilience.IsTransient(err) {
			return nil, resilience.NewTransientError(wrapped, 0)
		}
		return nil, wrapped
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "hubspot: read body"), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		if resilience.IsTransientResponse(resp.StatusCode, body) {
			return nil, resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return nil, apiErr
	}

	var out listResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "hubspot: decode companies")
	}
	return &out, nil
}

// asAPIError unwraps an *APIError returned directly or inside a transient wrapper.
func asAPIError(err error) (*APIError, bool) {
	switch e := err.(type) {
	case *APIError:
		return e, true
	case *resilience.TransientError:
		apiErr, ok := e.Err.(*APIError)
		return apiErr, ok
	default:
		return nil, false
	}
}
