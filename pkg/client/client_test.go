package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/airtoncarneiro/databricks-youtube-etl-pipeline/internal/testutil"
	"github.com/airtoncarneiro/databricks-youtube-etl-pipeline/pkg/ratelimit"
)

// newTestClient builds an ungated client with the given retry ceiling.
func newTestClient(maxRetries int) *Client {
	return New(Config{
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
	}, nil)
}

func TestGetJSON_Success(t *testing.T) {
	mock := testutil.NewMockYouTube()
	defer mock.Close()
	mock.SetResponse("/data", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"items": [{"id": "abc"}], "nextPageToken": "tok"}`,
	})

	c := newTestClient(5)
	got, err := c.GetJSON(context.Background(), mock.URL()+"/data", url.Values{"key": {"secret"}})
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if got["nextPageToken"] != "tok" {
		t.Errorf("nextPageToken = %v, want tok", got["nextPageToken"])
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("request count = %d, want 1", mock.GetRequestCount())
	}
	if mock.GetLastQuery().Get("key") != "secret" {
		t.Errorf("key param not forwarded")
	}
}

func TestGetJSON_RetriesTransientStatusThenSucceeds(t *testing.T) {
	const failures = 2

	var mu sync.Mutex
	var attempts []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts = append(attempts, time.Now())
		n := len(attempts)
		mu.Unlock()

		if n <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items": []}`))
	}))
	defer server.Close()

	c := newTestClient(5)
	if _, err := c.GetJSON(context.Background(), server.URL, nil); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != failures+1 {
		t.Fatalf("made %d attempts, want %d", len(attempts), failures+1)
	}

	// Backoff between attempts must strictly increase (1s, then 2.1s).
	gap1 := attempts[1].Sub(attempts[0])
	gap2 := attempts[2].Sub(attempts[1])
	if gap1 < 900*time.Millisecond {
		t.Errorf("first backoff %v, want ~1s", gap1)
	}
	if gap2 <= gap1 {
		t.Errorf("backoffs not increasing: %v then %v", gap1, gap2)
	}
}

func TestGetJSON_PermanentErrorNoRetry(t *testing.T) {
	mock := testutil.NewMockYouTube()
	defer mock.Close()
	mock.SetResponse("/data", testutil.MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "not found"}`,
	})

	c := newTestClient(5)
	_, err := c.GetJSON(context.Background(), mock.URL()+"/data", nil)
	if err == nil {
		t.Fatal("GetJSON() expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("permanent error must not report retry exhaustion")
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("request count = %d, want 1 (no retry on 404)", mock.GetRequestCount())
	}
}

func TestGetJSON_StatusRetryExhaustion(t *testing.T) {
	mock := testutil.NewMockYouTube()
	defer mock.Close()
	mock.SetResponse("/data", testutil.NewServerErrorResponse())

	c := newTestClient(2)
	_, err := c.GetJSON(context.Background(), mock.URL()+"/data", nil)
	if err == nil {
		t.Fatal("GetJSON() expected error")
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error %v, want ErrRetryExhausted", err)
	}
	if mock.GetRequestCount() != 2 {
		t.Errorf("request count = %d, want MaxRetries (2)", mock.GetRequestCount())
	}
}

func TestGetJSON_TransportRetryExhaustion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close() // every attempt now fails to connect

	c := newTestClient(2)
	_, err := c.GetJSON(context.Background(), addr, nil)
	if err == nil {
		t.Fatal("GetJSON() expected error")
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error %v, want ErrRetryExhausted", err)
	}
}

func TestGetJSON_ContextCancelledDuringBackoff(t *testing.T) {
	mock := testutil.NewMockYouTube()
	defer mock.Close()
	mock.SetResponse("/data", testutil.NewServerErrorResponse())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	c := newTestClient(5)
	start := time.Now()
	_, err := c.GetJSON(ctx, mock.URL()+"/data", nil)
	if err == nil {
		t.Fatal("GetJSON() expected error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error %v, want context deadline", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancelled call took %v, backoff did not honor context", elapsed)
	}
}

func TestGetJSON_AcquiresLimiterPerAttempt(t *testing.T) {
	mock := testutil.NewMockYouTube()
	defer mock.Close()
	mock.SetResponse("/data", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"items": []}`,
	})

	limiter := ratelimit.NewLimiter(1)
	c := New(Config{Timeout: 5 * time.Second, MaxRetries: 5}, limiter)

	ctx := context.Background()
	if _, err := c.GetJSON(ctx, mock.URL()+"/data", nil); err != nil {
		t.Fatalf("first GetJSON() error = %v", err)
	}

	// Budget of 1/s consumed: the second call must wait for the next window.
	start := time.Now()
	if _, err := c.GetJSON(ctx, mock.URL()+"/data", nil); err != nil {
		t.Fatalf("second GetJSON() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Errorf("second call returned after %v, expected rate limit gating", elapsed)
	}
}

func TestBackoffSchedules(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(int) time.Duration
		attempt int
		want    time.Duration
	}{
		{"status attempt 0", statusBackoff, 0, 1 * time.Second},
		{"status attempt 1", statusBackoff, 1, 2100 * time.Millisecond},
		{"status attempt 2", statusBackoff, 2, 4200 * time.Millisecond},
		{"transport attempt 0", transportBackoff, 0, 1 * time.Second},
		{"transport attempt 1", transportBackoff, 1, 2200 * time.Millisecond},
		{"transport attempt 2", transportBackoff, 2, 4400 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn(tt.attempt)
			diff := got - tt.want
			if diff < 0 {
				diff = -diff
			}
			if diff > time.Millisecond {
				t.Errorf("backoff = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		rawURL string
		want   string
	}{
		{"https://www.googleapis.com/youtube/v3/search", "/youtube/v3/search"},
		{"http://127.0.0.1:8080/videos", "/videos"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := endpointLabel(tt.rawURL); got != tt.want {
			t.Errorf("endpointLabel(%q) = %q, want %q", tt.rawURL, got, tt.want)
		}
	}
}
