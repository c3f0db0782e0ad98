package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 1 {
		t.Errorf("expected default burst 1 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "http://example.com/foo"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
	if err := limiter.Wait(ctx, "http://other.example"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestLimiter_WaitRejectsHostless(t *testing.T) {
	limiter := NewLimiter(1, 1)
	if err := limiter.Wait(context.Background(), "/relative/path"); err == nil {
		t.Error("expected error for URL without host")
	}
}

func TestLimiter_PerHost(t *testing.T) {
	limiter := NewLimiter(1, 1)
	url := "http://example.com"

	if !limiter.Allow(url) {
		t.Fatal("first request should be allowed")
	}
	if limiter.Allow(url) {
		t.Error("expected allow to fail (exhausted tokens)")
	}
	if !limiter.Allow("http://EXAMPLE.org/x") {
		t.Error("expected allow for other host")
	}
	if limiter.Allow("http://Example.COM/y") {
		t.Error("host matching should ignore case")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 10; i++ {
		if !limiter.Allow("http://example.com") {
			t.Fatalf("request %d should be allowed with throttling disabled", i)
		}
	}
}

func TestLimiter_WaitCancelled(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	limiter.Allow("http://example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, "http://example.com"); err == nil {
		t.Error("expected wait to fail once the context is done")
	}
}

func TestLimiter_ApplyCrawlDelay(t *testing.T) {
	limiter := NewLimiter(100, 5)
	limiter.ApplyCrawlDelay("slow.example", time.Hour)

	if !limiter.Allow("http://slow.example/a") {
		t.Fatal("first request should be allowed")
	}
	if limiter.Allow("http://slow.example/b") {
		t.Error("crawl delay should throttle the host")
	}
	if !limiter.Allow("http://fast.example/a") || !limiter.Allow("http://fast.example/b") {
		t.Error("other hosts keep the default rate")
	}
}

func TestLimiter_CrawlDelayNeverSpeedsUp(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	limiter.ApplyCrawlDelay("example.com", time.Millisecond)

	limiter.Allow("http://example.com")
	if limiter.Allow("http://example.com") {
		t.Error("a short crawl delay must not raise the default rate")
	}
}
