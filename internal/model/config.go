package model

import (
	"fmt"
	"time"
)

// Config is the full run configuration. It replaces the interactive prompts
// of a terminal session with explicit values, so the pipeline can be driven
// from the CLI, a scheduler, or tests alike.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Retry        RetryConfig        `yaml:"retry" mapstructure:"retry"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Normalize    NormalizeConfig    `yaml:"normalize" mapstructure:"normalize"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Debug        DebugConfig        `yaml:"debug" mapstructure:"debug"`
	Input        InputConfig        `yaml:"input" mapstructure:"input"`
	Collect      CollectConfig      `yaml:"collect" mapstructure:"collect"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
}

// HTTPConfig controls document fetching
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS   bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// RetryConfig bounds retries for transient fetch and model failures
type RetryConfig struct {
	FetchAttempts uint          `yaml:"fetch_attempts" mapstructure:"fetch_attempts"`
	FetchDelay    time.Duration `yaml:"fetch_delay" mapstructure:"fetch_delay"`
	LLMAttempts   uint          `yaml:"llm_attempts" mapstructure:"llm_attempts"`
	LLMDelay      time.Duration `yaml:"llm_delay" mapstructure:"llm_delay"`
	MaxDelay      time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
}

// LLMConfig selects and configures the extraction model
type LLMConfig struct {
	Provider        string  `yaml:"provider" mapstructure:"provider"` // gemini, openai, anthropic, ollama
	Model           string  `yaml:"model" mapstructure:"model"`
	APIKey          string  `yaml:"-" mapstructure:"api_key"` // Never written back to disk
	BaseURL         string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout         int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens       int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature     float32 `yaml:"temperature" mapstructure:"temperature"`
	RepromptOnEmpty bool    `yaml:"reprompt_on_empty" mapstructure:"reprompt_on_empty"`
}

// RateLimitingConfig throttles requests per host
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// CacheConfig controls the fetched-page cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir" mapstructure:"dir"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// NormalizeConfig controls how pages are reduced to model input
type NormalizeConfig struct {
	Format   string `yaml:"format" mapstructure:"format"` // text or markdown
	MaxChars int    `yaml:"max_chars" mapstructure:"max_chars"`
}

// StoreConfig controls the output spreadsheet
type StoreConfig struct {
	OutputDir  string `yaml:"output_dir" mapstructure:"output_dir"`
	FlushEvery int    `yaml:"flush_every" mapstructure:"flush_every"`
}

// DebugConfig controls debug artifacts
type DebugConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	KeepRepaired bool   `yaml:"keep_repaired" mapstructure:"keep_repaired"`
}

// InputConfig locates the URL list
type InputConfig struct {
	LinksFile string `yaml:"links_file" mapstructure:"links_file"`
}

// CollectConfig controls the listing-page link collector
type CollectConfig struct {
	Pattern  string        `yaml:"pattern" mapstructure:"pattern"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Attempts uint          `yaml:"attempts" mapstructure:"attempts"`
	Delay    time.Duration `yaml:"delay" mapstructure:"delay"`
}

// OutputConfig controls terminal output
type OutputConfig struct {
	Verbose   bool   `yaml:"verbose" mapstructure:"verbose"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format"` // text or json
}

// DefaultCasePattern matches single-decision pages on the eLibrary
const DefaultCasePattern = `^https?://elibrary\.judiciary\.gov\.ph/thebookshelf/showdocs/\d+/\d+$`

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "caselift/0.3 (+https://github.com/ppiankov/caselift)",
			MaxBodyBytes: 10_000_000,
		},
		Retry: RetryConfig{
			FetchAttempts: 4,
			FetchDelay:    2 * time.Second,
			LLMAttempts:   4,
			LLMDelay:      2 * time.Second,
			MaxDelay:      30 * time.Second,
		},
		LLM: LLMConfig{
			Provider:        "gemini",
			Model:           "gemini-flash-latest",
			Timeout:         120,
			MaxTokens:       8192,
			Temperature:     0.1,
			RepromptOnEmpty: true,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 0.5,
			BurstSize:         1,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".caselift-cache",
			TTL:     24 * time.Hour,
		},
		Normalize: NormalizeConfig{
			Format:   "text",
			MaxChars: 285_000,
		},
		Store: StoreConfig{
			OutputDir:  "excel_files",
			FlushEvery: 1,
		},
		Debug: DebugConfig{
			Dir: "debug",
		},
		Input: InputConfig{
			LinksFile: "links.txt",
		},
		Collect: CollectConfig{
			Pattern:  DefaultCasePattern,
			Timeout:  15 * time.Second,
			Attempts: 3,
			Delay:    time.Second,
		},
		Output: OutputConfig{
			LogFormat: "text",
		},
	}
}

// ConfigError is a fatal configuration problem detected before any work starts
type ConfigError struct {
	Key string
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Msg)
}
