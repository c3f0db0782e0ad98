// Package cache keeps fetched pages so reruns over the same URL list do not
// hit the source again.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry expiry
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// PageKey generates the cache key for a document URL
func PageKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return "caselift:v1:page:" + hex.EncodeToString(hash[:])
}

// Page is a cached fetch result
type Page struct {
	URL       string    `json:"url"`
	Body      []byte    `json:"body"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Pages stores fetched pages on top of a Cache
type Pages struct {
	store Cache
	ttl   time.Duration
}

// NewPages wraps store; ttl applies to every page
func NewPages(store Cache, ttl time.Duration) *Pages {
	return &Pages{store: store, ttl: ttl}
}

// Get returns the cached page for url
func (p *Pages) Get(url string) (*Page, bool) {
	data, ok := p.store.Get(PageKey(url))
	if !ok {
		return nil, false
	}
	var page Page
	if err := json.Unmarshal(data, &page); err != nil || page.URL != url {
		return nil, false
	}
	return &page, true
}

// Put stores body as the page for url
func (p *Pages) Put(url string, body []byte) error {
	data, err := json.Marshal(Page{URL: url, Body: body, FetchedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return p.store.Set(PageKey(url), data, p.ttl)
}

// Forget drops the cached page for url
func (p *Pages) Forget(url string) error {
	return p.store.Delete(PageKey(url))
}
