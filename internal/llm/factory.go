package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/caselift/internal/model"
)

// APIKeyEnv maps each hosted provider to the environment variable that holds
// its credential
var APIKeyEnv = map[string]string{
	"gemini":    "GEMINI_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// NewProvider creates a provider from configuration. A missing credential
// is a *model.ConfigError.
func NewProvider(ctx context.Context, config Config) (Provider, error) {
	name := normalizeProvider(config.Provider)

	if env, ok := APIKeyEnv[name]; ok && config.APIKey == "" {
		return nil, &model.ConfigError{Key: env, Msg: fmt.Sprintf("not set; add it to your environment or .env file to use the %s provider", name)}
	}

	switch name {
	case "gemini":
		return NewGeminiProvider(ctx, config)
	case "openai":
		return NewOpenAIProvider(config)
	case "anthropic":
		return NewAnthropicProvider(config)
	case "ollama":
		return NewOllamaProvider(config)
	default:
		return nil, &model.ConfigError{Key: "llm.provider", Msg: fmt.Sprintf("unknown provider %q (supported: gemini, openai, anthropic, ollama)", config.Provider)}
	}
}

func normalizeProvider(p string) string {
	switch p = strings.ToLower(strings.TrimSpace(p)); p {
	case "", "google":
		return "gemini"
	case "claude":
		return "anthropic"
	}
	return p
}

// ConfigFromModel converts the run configuration into provider settings.
// An empty API key is filled from the provider's environment variable.
func ConfigFromModel(cfg *model.Config) Config {
	c := Config{
		Provider:    normalizeProvider(cfg.LLM.Provider),
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Timeout:     cfg.LLM.Timeout,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		HTTPProxy:   cfg.HTTP.HTTPProxy,
		HTTPSProxy:  cfg.HTTP.HTTPSProxy,
		NoProxy:     cfg.HTTP.NoProxy,
	}
	if c.APIKey == "" {
		if env, ok := APIKeyEnv[c.Provider]; ok {
			c.APIKey = os.Getenv(env)
		}
	}
	return c
}
