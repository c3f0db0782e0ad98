package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/ppiankov/caselift/internal/util"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends one prompt and returns the model's text. An empty
	// Text with a nil error means the provider returned nothing, usually
	// because of content filtering.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest is a single-turn prompt
type CompletionRequest struct {
	System    string
	Prompt    string
	Model     string // Overrides the configured model when set
	MaxTokens int    // Overrides the configured limit when set
	JSONMode  bool   // Ask the provider for JSON output where supported
}

// CompletionResponse is the model's reply
type CompletionResponse struct {
	Text         string
	Model        string
	FinishReason string
	TokensUsed   int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "gemini", "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for hosted providers
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	MaxTokens   int
	Temperature float32

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:    "gemini",
		Model:       "gemini-flash-latest",
		Timeout:     120,
		MaxTokens:   8192,
		Temperature: 0.1,
	}
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout) * time.Second
	}
	return fallback
}

func (c Config) maxTokens(override int) int {
	if override > 0 {
		return override
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 8192
}

func (c Config) model(override, fallback string) string {
	if override != "" {
		return override
	}
	if c.Model != "" {
		return c.Model
	}
	return fallback
}

func (c Config) httpClient(fallback time.Duration) *http.Client {
	return &http.Client{
		Timeout:   c.timeout(fallback),
		Transport: util.NewTransport(false, c.HTTPProxy, c.HTTPSProxy, c.NoProxy),
	}
}
