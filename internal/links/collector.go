package links

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gocolly/colly/v2"
)

// CollectorOptions configures a Collector
type CollectorOptions struct {
	Pattern   string // Regexp matched case-insensitively; empty keeps every link
	UserAgent string
	Timeout   time.Duration
	Attempts  uint
	Delay     time.Duration
	Logger    *slog.Logger
}

// Collector pulls document links out of a listing page
type Collector struct {
	pattern   *regexp.Regexp
	userAgent string
	timeout   time.Duration
	attempts  uint
	delay     time.Duration
	logger    *slog.Logger
}

// NewCollector validates the pattern and fills defaults
func NewCollector(opts CollectorOptions) (*Collector, error) {
	c := &Collector{
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		attempts:  opts.Attempts,
		delay:     opts.Delay,
		logger:    opts.Logger,
	}
	if opts.Pattern != "" {
		re, err := regexp.Compile("(?i)" + opts.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid link pattern: %w", err)
		}
		c.pattern = re
	}
	if c.timeout <= 0 {
		c.timeout = 15 * time.Second
	}
	if c.attempts == 0 {
		c.attempts = 3
	}
	if c.delay <= 0 {
		c.delay = time.Second
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Collect fetches listingURL and returns its unique absolute links in page
// order, filtered by the pattern. Transient failures are retried with
// doubling delays.
func (c *Collector) Collect(ctx context.Context, listingURL string) ([]string, error) {
	if err := CheckURL(listingURL); err != nil {
		return nil, fmt.Errorf("listing url: %w", err)
	}

	return retry.DoWithData(
		func() ([]string, error) {
			return c.collectOnce(ctx, listingURL)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("collect.retry",
				"url", listingURL,
				"attempt", n+1,
				"max_attempts", c.attempts,
				"error", err)
		}),
	)
}

func (c *Collector) collectOnce(ctx context.Context, listingURL string) ([]string, error) {
	opts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
	}
	if c.userAgent != "" {
		opts = append(opts, colly.UserAgent(c.userAgent))
	}
	col := colly.NewCollector(opts...)
	col.SetRequestTimeout(c.timeout)

	var found []string
	seen := make(map[string]bool)

	col.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := strings.TrimSpace(e.Attr("href"))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		abs := e.Request.AbsoluteURL(href)
		if abs == "" || CheckURL(abs) != nil {
			return
		}
		if c.pattern != nil && !c.pattern.MatchString(abs) {
			return
		}
		if !seen[abs] {
			seen[abs] = true
			found = append(found, abs)
		}
	})

	var pageErr error
	col.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			pageErr = fmt.Errorf("HTTP %d: %w", r.StatusCode, err)
			return
		}
		pageErr = err
	})

	if err := col.Visit(listingURL); err != nil {
		if pageErr != nil {
			return nil, pageErr
		}
		return nil, err
	}
	if pageErr != nil {
		return nil, pageErr
	}

	c.logger.Debug("collect.page", "url", listingURL, "links", len(found))
	return found, nil
}
