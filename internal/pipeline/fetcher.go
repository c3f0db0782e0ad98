package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/net/html/charset"

	"github.com/ppiankov/caselift/internal/cache"
	"github.com/ppiankov/caselift/internal/ratelimit"
	"github.com/ppiankov/caselift/internal/util"
)

// ErrRobotsDisallowed is returned for URLs excluded by the host's robots.txt
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// FetchError describes a failed document fetch
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Attempts   int
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %v after %d attempt(s)", e.URL, e.Err, e.Attempts)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher fetches HTML content from URLs
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64

	attempts uint
	delay    time.Duration
	maxDelay time.Duration

	limiter *ratelimit.Limiter
	robots  *util.RobotsChecker
	pages   *cache.Pages
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher with the retry defaults of 4 attempts,
// starting at 2s and capped at 30s
func NewFetcher(timeout time.Duration, userAgent string, maxBytes int64, insecureTLS bool, httpProxy, httpsProxy, noProxy string) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: util.NewTransport(insecureTLS, httpProxy, httpsProxy, noProxy),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
		maxBytes:  maxBytes,
		attempts:  4,
		delay:     2 * time.Second,
		maxDelay:  30 * time.Second,
		logger:    slog.Default(),
	}
}

// SetRetry overrides the retry policy
func (f *Fetcher) SetRetry(attempts uint, delay, maxDelay time.Duration) {
	if attempts > 0 {
		f.attempts = attempts
	}
	if delay > 0 {
		f.delay = delay
	}
	if maxDelay > 0 {
		f.maxDelay = maxDelay
	}
}

// SetLimiter throttles requests per host
func (f *Fetcher) SetLimiter(l *ratelimit.Limiter) { f.limiter = l }

// SetRobots enables robots.txt checks
func (f *Fetcher) SetRobots(r *util.RobotsChecker) { f.robots = r }

// SetCache enables the page cache
func (f *Fetcher) SetCache(p *cache.Pages) { f.pages = p }

// SetLogger sets the logger used for retry events
func (f *Fetcher) SetLogger(l *slog.Logger) {
	if l != nil {
		f.logger = l
	}
}

// Client returns the underlying HTTP client
func (f *Fetcher) Client() *http.Client {
	return f.httpClient
}

// FetchResult contains the fetched HTML and metadata
type FetchResult struct {
	HTML        string
	FinalURL    string
	StatusCode  int
	ContentType string
	Attempts    int
	FromCache   bool
}

// FetchWithRetry serves rawURL from the cache when possible, otherwise
// fetches it, retrying timeouts, connection errors, 429 and 5xx responses
// with exponential backoff. Other 4xx responses fail at once.
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*FetchResult, error) {
	if f.pages != nil {
		if page, ok := f.pages.Get(rawURL); ok {
			return &FetchResult{HTML: string(page.Body), FinalURL: rawURL, StatusCode: http.StatusOK, FromCache: true}, nil
		}
	}

	if f.robots != nil {
		allowed, crawlDelay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, &FetchError{URL: rawURL, Err: err}
		}
		if !allowed {
			return nil, &FetchError{URL: rawURL, Err: ErrRobotsDisallowed}
		}
		if crawlDelay > 0 && f.limiter != nil {
			if host, err := ratelimit.Host(rawURL); err == nil {
				f.limiter.ApplyCrawlDelay(host, crawlDelay)
			}
		}
	}

	attempts := 0
	result, err := retry.DoWithData(
		func() (*FetchResult, error) {
			attempts++
			return f.Fetch(ctx, rawURL)
		},
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.MaxDelay(f.maxDelay),
		retry.DelayType(f.backoff),
		retry.RetryIf(isRetryableFetchError),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Warn("fetch.retry",
				"url", rawURL,
				"attempt", n+1,
				"max_attempts", f.attempts,
				"error", err)
		}),
	)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			fe.Attempts = attempts
			return nil, fe
		}
		return nil, &FetchError{URL: rawURL, Attempts: attempts, Err: err}
	}

	result.Attempts = attempts
	if f.pages != nil {
		if err := f.pages.Put(rawURL, []byte(result.HTML)); err != nil {
			f.logger.Warn("cache.put.failed", "url", rawURL, "error", err)
		}
	}
	return result, nil
}

// backoff doubles the delay per attempt, but honors a server's Retry-After
func (f *Fetcher) backoff(n uint, err error, config *retry.Config) time.Duration {
	var fe *FetchError
	if errors.As(err, &fe) && fe.RetryAfter > 0 {
		return fe.RetryAfter
	}
	return retry.BackOffDelay(n, err, config)
}

// Fetch performs a single GET of rawURL
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, &FetchError{URL: rawURL, Attempts: 1, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Attempts: 1, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Attempts: 1, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Attempts:   1,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("unexpected status: %s", resp.Status),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Attempts: 1, Err: fmt.Errorf("read body: %w", err)}
	}

	contentType := resp.Header.Get("Content-Type")
	return &FetchResult{
		HTML:        decodeBody(raw, contentType),
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Attempts:    1,
	}, nil
}

// decodeBody converts the body to UTF-8 using the declared or sniffed charset
func decodeBody(raw []byte, contentType string) string {
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return string(raw)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// isRetryableFetchError reports whether a fetch failure is transient:
// timeouts, dropped or refused connections, 429 and 5xx responses
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrRobotsDisallowed) {
		return false
	}

	var fe *FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		return fe.StatusCode == http.StatusTooManyRequests || fe.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF)
}
