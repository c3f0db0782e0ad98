package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/caselift/internal/cache"
	"github.com/ppiankov/caselift/internal/ratelimit"
	"github.com/ppiankov/caselift/internal/util"
)

func newTestFetcher(timeout time.Duration) *Fetcher {
	f := NewFetcher(timeout, "test-agent", 1<<20, false, "", "", "")
	f.SetRetry(4, time.Millisecond, 5*time.Millisecond)
	return f
}

func TestFetchWithRetry_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, "<html><body>OK</body></html>")
	}))
	defer server.Close()

	result, err := newTestFetcher(5*time.Second).FetchWithRetry(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.HTML != "<html><body>OK</body></html>" {
		t.Errorf("Unexpected HTML: %s", result.HTML)
	}
	if result.Attempts != 1 || result.FromCache {
		t.Errorf("Unexpected metadata: %+v", result)
	}
}

func TestFetchWithRetry_TimeoutTwiceThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, "<html>case</html>")
	}))
	defer server.Close()

	result, err := newTestFetcher(100*time.Millisecond).FetchWithRetry(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected success after timeouts, got %v", err)
	}
	if result.HTML != "<html>case</html>" {
		t.Errorf("Unexpected HTML: %s", result.HTML)
	}
	if attempts.Load() != 3 || result.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got server=%d result=%d", attempts.Load(), result.Attempts)
	}
}

func TestFetchWithRetry_TransientThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, "<html>OK</html>")
	}))
	defer server.Close()

	result, err := newTestFetcher(5*time.Second).FetchWithRetry(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if result.HTML != "<html>OK</html>" {
		t.Errorf("Unexpected HTML: %s", result.HTML)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_PermanentFailure(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestFetcher(5*time.Second).FetchWithRetry(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error for 404, got nil")
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Expected *FetchError, got %T", err)
	}
	if fe.StatusCode != http.StatusNotFound || fe.Attempts != 1 {
		t.Errorf("Unexpected FetchError: %+v", fe)
	}
	if attempts.Load() != 1 {
		t.Errorf("404 must not be retried, got %d attempts", attempts.Load())
	}
}

func TestFetchWithRetry_AllRetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestFetcher(5*time.Second).FetchWithRetry(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error after all retries exhausted")
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusBadGateway || fe.Attempts != 4 {
		t.Errorf("Unexpected error: %v", err)
	}
	if attempts.Load() != 4 {
		t.Errorf("Expected 4 attempts, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_429Retried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = fmt.Fprint(w, "<html>OK</html>")
	}))
	defer server.Close()

	result, err := newTestFetcher(5*time.Second).FetchWithRetry(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected success after 429 retry, got %v", err)
	}
	if result.HTML != "<html>OK</html>" {
		t.Errorf("Unexpected HTML: %s", result.HTML)
	}
	if attempts.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_CacheHitSkipsNetwork(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		_, _ = fmt.Fprint(w, "<html>fresh</html>")
	}))
	defer server.Close()

	f := newTestFetcher(5 * time.Second)
	f.SetCache(cache.NewPages(cache.NewMemoryCache(time.Minute, time.Minute), time.Minute))

	for i := 0; i < 2; i++ {
		result, err := f.FetchWithRetry(context.Background(), server.URL)
		if err != nil {
			t.Fatal(err)
		}
		if result.HTML != "<html>fresh</html>" {
			t.Errorf("Unexpected HTML: %s", result.HTML)
		}
		if i == 1 && !result.FromCache {
			t.Error("second fetch should come from the cache")
		}
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 network hit, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_RobotsDisallowed(t *testing.T) {
	var docHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
			return
		}
		docHits.Add(1)
		_, _ = fmt.Fprint(w, "<html>secret</html>")
	}))
	defer server.Close()

	f := newTestFetcher(5 * time.Second)
	f.SetRobots(util.NewRobotsChecker("test-agent", time.Second, nil))
	f.SetLimiter(ratelimit.NewLimiter(0, 1))

	_, err := f.FetchWithRetry(context.Background(), server.URL+"/private/doc")
	if !errors.Is(err, ErrRobotsDisallowed) {
		t.Fatalf("Expected robots disallow, got %v", err)
	}
	if docHits.Load() != 0 {
		t.Error("disallowed document must not be requested")
	}

	if _, err := f.FetchWithRetry(context.Background(), server.URL+"/public"); err != nil {
		t.Errorf("public path should be fetched: %v", err)
	}
}

func TestFetch_DecodesCharset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<p>Se\xf1or</p>"))
	}))
	defer server.Close()

	result, err := newTestFetcher(5*time.Second).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	if result.HTML != "<p>Señor</p>" {
		t.Errorf("Expected UTF-8 text, got %q", result.HTML)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryableFetchError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"503", &FetchError{StatusCode: 503}, true},
		{"500", &FetchError{StatusCode: 500}, true},
		{"502", &FetchError{StatusCode: 502}, true},
		{"429", &FetchError{StatusCode: 429}, true},
		{"404", &FetchError{StatusCode: 404}, false},
		{"403", &FetchError{StatusCode: 403}, false},
		{"401", &FetchError{StatusCode: 401}, false},
		{"timeout", &FetchError{Err: timeoutErr{}}, true},
		{"connection refused", &FetchError{Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}, true},
		{"robots", &FetchError{Err: ErrRobotsDisallowed}, false},
		{"canceled", &FetchError{Err: context.Canceled}, false},
		{"create request", &FetchError{Err: errors.New("create request: invalid URL")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableFetchError(tt.err); got != tt.retryable {
				t.Errorf("isRetryableFetchError(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestIsRetryableFetchError_Nil(t *testing.T) {
	if isRetryableFetchError(nil) {
		t.Error("Expected nil error to not be retryable")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("3"); got != 3*time.Second {
		t.Errorf("expected 3s, got %v", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Errorf("expected 0 for garbage, got %v", got)
	}
}
