package adapters

import (
	"net/url"
	"strings"
)

// Adapter describes where a site keeps the decision text
type Adapter interface {
	// Name returns the adapter name
	Name() string

	// CanHandle checks if this adapter knows the page's site
	CanHandle(rawURL string) bool

	// ContentSelectors lists CSS selectors for the content container of
	// rawURL, most specific first
	ContentSelectors(rawURL string) []string

	// NoiseSelectors lists site-specific elements removed before
	// extraction, on top of the common noise
	NoiseSelectors(rawURL string) []string
}

// Registry manages site adapters
type Registry struct {
	adapters []Adapter
	generic  Adapter
}

// NewRegistry creates a registry with the built-in adapters
func NewRegistry() *Registry {
	registry := &Registry{
		adapters: make([]Adapter, 0),
	}

	registry.Register(NewLegalAdapter())

	// Set generic adapter as fallback
	registry.generic = NewGenericAdapter()

	return registry
}

// Register registers a new adapter. Adapters registered earlier win.
func (r *Registry) Register(adapter Adapter) {
	r.adapters = append(r.adapters, adapter)
}

// FindAdapter finds the adapter for the given URL
func (r *Registry) FindAdapter(rawURL string) Adapter {
	for _, adapter := range r.adapters {
		if adapter.CanHandle(rawURL) {
			return adapter
		}
	}
	return r.generic
}

// BaseAdapter provides common functionality for adapters
type BaseAdapter struct{}

// MatchHost reports whether rawURL's host is one of domains or a subdomain
// of one
func (b *BaseAdapter) MatchHost(rawURL string, domains ...string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
