package hubspot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/customer-map/internal/resilience"
)

func fastRetry() resilience.Policy {
	return resilience.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func newTestClient(srv *httptest.Server, opts ...ClientOption) *Client {
	base := []ClientOption{WithRetryPolicy(fastRetry())}
	return NewClient(srv.URL+"/api/hubspot", append(base, opts...)...)
}

func TestListCompanies_Pagination(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/hubspot", r.URL.Path)
		assert.Equal(t, CompaniesPath, r.URL.Query().Get("path"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("after") {
		case "":
			_, _ = io.WriteString(w, `{"results":[{"id":"1","properties":{"name":"Reno USD"}}],"paging":{"next":{"after":"c1"}}}`)
		case "c1":
			_, _ = io.WriteString(w, `{"results":[{"id":"2","properties":{"name":"Elko USD"}}]}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("after"))
		}
	}))
	defer srv.Close()

	got, err := newTestClient(srv).ListCompanies(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "Reno USD", got[0].Properties.Name)
	assert.Equal(t, "Elko USD", got[1].Properties.Name)
	assert.Equal(t, int32(2), calls.Load())
}

func TestListCompanies_RequestsProperties(t *testing.T) {
	var props string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		props = r.URL.Query().Get("properties")
		_, _ = io.WriteString(w, `{"results":[]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, WithProperties([]string{"name", "state"})).ListCompanies(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "name,state", props)
}

func TestListCompanies_AuthorizationHeader(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{name: "with token", token: "pat-123", want: "Bearer pat-123"},
		{name: "without token", token: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("Authorization")
				_, _ = io.WriteString(w, `{"results":[]}`)
			}))
			defer srv.Close()

			_, err := newTestClient(srv).ListCompanies(context.Background(), tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListCompanies_UnauthorizedNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"Authorization header required"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ListCompanies(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Authorization header required")
	assert.Equal(t, int32(1), calls.Load())
}

func TestListCompanies_TransientRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"results":[{"id":"9","properties":{}}]}`)
	}))
	defer srv.Close()

	got, err := newTestClient(srv).ListCompanies(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestListCompanies_TransientExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ListCompanies(context.Background(), "")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, int32(3), calls.Load())
}

func TestListCompanies_RateLimitBodyRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"status":"error","message":"secondly limit","category":"RATE_LIMITS"}`)
			return
		}
		_, _ = io.WriteString(w, `{"results":[{"id":"9","properties":{}}]}`)
	}))
	defer srv.Close()

	got, err := newTestClient(srv).ListCompanies(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestListCompanies_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ListCompanies(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestListCompanies_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"results":`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ListCompanies(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode companies")
}

func TestListCompanies_MaxPages(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		fmt.Fprintf(w, `{"results":[{"id":"%d","properties":{}}],"paging":{"next":{"after":"c%d"}}}`, n, n)
	}))
	defer srv.Close()

	got, err := newTestClient(srv, WithMaxPages(3)).ListCompanies(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestListCompanies_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"results":[]}`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(srv).ListCompanies(ctx, "")
	require.Error(t, err)
}

func TestAPIError_TruncatesBody(t *testing.T) {
	err := &APIError{StatusCode: 500, Body: strings.Repeat("x", 2000)}
	assert.Less(t, len(err.Error()), 600)
	assert.Contains(t, err.Error(), "status 500")
}
