// Package proxy relays CRM API reads so browser and service callers never
// talk to the CRM directly.
package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/customer-map/internal/resilience"
)

const (
	// DefaultPath is the CRM resource requested when the caller omits ?path.
	DefaultPath = "/crm/v3/objects/companies"
	// UserAgent identifies the proxy to the CRM.
	UserAgent = "Edlio-Customer-Map/1.0"

	defaultTimeout = 30 * time.Second
)

// ErrorResponse is the JSON body of every proxy-generated error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Option configures a Handler.
type Option func(*Handler)

// WithHTTPClient sets the client used for upstream requests.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Handler) {
		if c != nil {
			h.client = c
		}
	}
}

// WithTimeout bounds each upstream request. The client is copied so a
// client passed to WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			c := *h.client
			c.Timeout = d
			h.client = &c
		}
	}
}

// Handler forwards GET requests to the CRM base URL.
type Handler struct {
	baseURL string
	token   string
	client  *http.Client
}

// New creates a proxy for baseURL. token is the server-side credential used
// when the caller sends no Authorization header; it may be empty.
func New(baseURL, token string, opts ...Option) *Handler {
	h := &Handler{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router returns the proxy routes with permissive CORS, for mounting at
// /api/hubspot.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))
	r.HandleFunc("/", h.ServeHTTP)
	return r
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodGet:
	default:
		writeError(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
		return
	}

	auth := r.Header.Get("Authorization")
	if auth == "" && h.token != "" {
		auth = "Bearer " + h.token
	}
	if auth == "" {
		writeError(w, http.StatusUnauthorized, ErrorResponse{Error: "Authorization header required"})
		return
	}

	query := r.URL.Query()
	path := query.Get("path")
	query.Del("path")
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid path", Details: "path must start with /"})
		return
	}

	target := h.baseURL + path
	if qs := query.Encode(); qs != "" {
		target += "?" + qs
	}

	log := zap.L().With(zap.String("component", "proxy"), zap.String("path", path))

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		log.Warn("proxy: build upstream request", zap.Error(err))
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: resilience.ProxyFailure, Details: err.Error()})
		return
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		log.Warn("proxy: upstream request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: resilience.ProxyFailure, Details: err.Error()})
		return
	}
	defer resp.Body.Close() //nolint:errcheck

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(resp.StatusCode)
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		log.Warn("proxy: relay body", zap.Int64("bytes", n), zap.Error(err))
		return
	}

	log.Debug("proxy: relayed",
		zap.Int("status", resp.StatusCode),
		zap.Int64("bytes", n),
	)
}

func writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
