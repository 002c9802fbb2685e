// Package testutil provides testing utilities for the ingester.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// MockResponse defines the behavior of one mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockYouTube is a configurable mock of the YouTube Data API v3 for tests.
// Handlers are keyed by path (/channels, /search, /videos).
type MockYouTube struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	PathCounts   map[string]int
	LastQuery    url.Values
}

// NewMockYouTube creates a new mock API server.
func NewMockYouTube() *MockYouTube {
	mock := &MockYouTube{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.LastQuery = r.URL.Query()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL, usable as the API base URL.
func (m *MockYouTube) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockYouTube) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockYouTube) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.LastQuery = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockYouTube) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockYouTube) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the total number of requests served.
func (m *MockYouTube) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests served for one path.
func (m *MockYouTube) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// GetLastQuery returns the query parameters of the most recent request.
func (m *MockYouTube) GetLastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

// defaultHandler answers any unconfigured path with an empty items list.
func (m *MockYouTube) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"items": []}`))
}

// mustJSON marshals fixtures; fixture construction never fails.
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// ChannelsBody builds a channels.list response with one item per id.
func ChannelsBody(channelIDs ...string) string {
	items := make([]any, 0, len(channelIDs))
	for _, id := range channelIDs {
		items = append(items, map[string]any{
			"kind": "youtube#channel",
			"id":   id,
			"snippet": map[string]any{
				"title": "channel " + id,
			},
			"statistics": map[string]any{
				"subscriberCount": "123",
			},
		})
	}
	return mustJSON(map[string]any{"items": items})
}

// SearchBody builds one search.list page of video ids. An empty
// nextPageToken omits the token (last page).
func SearchBody(nextPageToken string, videoIDs ...string) string {
	items := make([]any, 0, len(videoIDs))
	for _, id := range videoIDs {
		items = append(items, map[string]any{
			"kind": "youtube#searchResult",
			"id": map[string]any{
				"kind":    "youtube#video",
				"videoId": id,
			},
		})
	}
	body := map[string]any{"items": items}
	if nextPageToken != "" {
		body["nextPageToken"] = nextPageToken
	}
	return mustJSON(body)
}

// VideosBody builds a videos.list response with one detail item per id.
func VideosBody(videoIDs ...string) string {
	items := make([]any, 0, len(videoIDs))
	for _, id := range videoIDs {
		items = append(items, map[string]any{
			"kind": "youtube#video",
			"id":   id,
			"snippet": map[string]any{
				"title": "video " + id,
			},
			"statistics": map[string]any{
				"viewCount": "42",
			},
		})
	}
	return mustJSON(map[string]any{"items": items})
}

// NewServerErrorResponse creates a 503 response for retry tests.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"error": "backend unavailable"}`,
	}
}
