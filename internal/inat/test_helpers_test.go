package inat

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// mockResponse represents a mocked HTTP response
type mockResponse struct {
	status      int
	body        string
	contentType string
}

// countingServer wraps a mock server and counts requests per path
type countingServer struct {
	*httptest.Server
	requests atomic.Int64
}

// setupTestClient creates a test client pointed at the given server
func setupTestClient(tb testing.TB, server *httptest.Server) *Client {
	tb.Helper()

	return NewClient(Config{
		BaseURL:             server.URL,
		AutocompleteTTL:     time.Hour,
		LookupTTL:           time.Hour,
		AutocompleteTimeout: 2 * time.Second,
		TaxaTimeout:         2 * time.Second,
		ObservationsTimeout: 2 * time.Second,
		RateLimitMS:         1, // fast for tests
	})
}

// setupMockServer creates a mock server with predefined responses keyed by
// path (query string excluded, queries vary per test).
func setupMockServer(tb testing.TB, responses map[string]mockResponse) *countingServer {
	tb.Helper()

	cs := &countingServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.requests.Add(1)

		if response, ok := responses[r.URL.Path]; ok {
			if response.contentType != "" {
				w.Header().Set("Content-Type", response.contentType)
			} else {
				w.Header().Set("Content-Type", "application/json")
			}
			w.WriteHeader(response.status)
			_, _ = w.Write([]byte(response.body))
			return
		}

		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "not found"}`))
	}))
	tb.Cleanup(cs.Close)

	return cs
}
