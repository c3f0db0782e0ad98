package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/caselift/internal/model"
)

// Version is overridden at build time with -ldflags
var Version = "v0.3.0"

var (
	cfgFile   string
	envFile   string
	verbose   bool
	logFormat string

	// appConfig is the effective configuration, loaded before each command
	appConfig *model.Config
	logger    = slog.Default()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "caselift",
	Short: "Caselift - court decision pages to a spreadsheet",
	Long: `Caselift turns court decision pages into spreadsheet rows.

For every URL in links.txt it fetches the page, reduces it to readable
text, asks a language model for the case number, title, facts, decision,
ruling and verdict, repairs and validates the model's JSON, and appends
the record to an Excel workbook without duplicating existing cases.

Extraction accuracy is not guaranteed; the model can be wrong.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of Caselift.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("caselift %s\n", Version)
	},
}

func init() {
	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.caselift/config.yaml)")
	flags.StringVar(&envFile, "env-file", "", "dotenv file with API keys (default: ./.env if present)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	flags.StringVar(&logFormat, "log-format", "text", "log format: text or json")
	flags.String("provider", "", "LLM provider: gemini, openai, anthropic, ollama")
	flags.String("model", "", "LLM model name")
	flags.String("base-url", "", "LLM API base URL (Ollama or compatible endpoints)")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("output.log_format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("llm.provider", flags.Lookup("provider"))
	_ = viper.BindPFlag("llm.model", flags.Lookup("model"))
	_ = viper.BindPFlag("llm.base_url", flags.Lookup("base-url"))

	rootCmd.AddCommand(versionCmd)
}

// setup loads .env, the config file and the environment, then configures
// logging. It runs before every subcommand.
func setup(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return &model.ConfigError{Key: "env-file", Msg: err.Error()}
		}
	} else {
		_ = godotenv.Load()
	}

	// A --provider without --model must not inherit another provider's model
	if f := cmd.Flags().Lookup("provider"); f != nil && f.Changed {
		if m := cmd.Flags().Lookup("model"); m == nil || !m.Changed {
			viper.Set("llm.model", "")
		}
	}

	cfg, err := loadConfig(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	appConfig = cfg

	logger = newLogger(os.Stderr, cfg.Output.LogFormat, cfg.Output.Verbose)
	slog.SetDefault(logger)
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug("config.loaded", "file", used)
	}
	return nil
}

// loadConfig reads the config file (explicit path or ~/.caselift/config.yaml)
// and CASELIFT_* variables over the built-in defaults.
// Precedence: flags > env > file > defaults.
func loadConfig(v *viper.Viper, path string) (*model.Config, error) {
	cfg := model.DefaultConfig()
	setDefaults(v, cfg)

	v.SetEnvPrefix("CASELIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".caselift"))
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, &model.ConfigError{Key: "config", Msg: err.Error()}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, &model.ConfigError{Key: "config", Msg: err.Error()}
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultModel(cfg.LLM.Provider)
	}
	return cfg, nil
}

// setDefaults registers every key so that CASELIFT_* variables are seen by
// Unmarshal even when no config file mentions them
func setDefaults(v *viper.Viper, cfg *model.Config) {
	defaults := map[string]any{
		"http.timeout":        cfg.HTTP.Timeout,
		"http.user_agent":     cfg.HTTP.UserAgent,
		"http.max_body_bytes": cfg.HTTP.MaxBodyBytes,
		"http.insecure_tls":   cfg.HTTP.InsecureTLS,
		"http.respect_robots": cfg.HTTP.RespectRobots,
		"http.http_proxy":     cfg.HTTP.HTTPProxy,
		"http.https_proxy":    cfg.HTTP.HTTPSProxy,
		"http.no_proxy":       cfg.HTTP.NoProxy,

		"retry.fetch_attempts": cfg.Retry.FetchAttempts,
		"retry.fetch_delay":    cfg.Retry.FetchDelay,
		"retry.llm_attempts":   cfg.Retry.LLMAttempts,
		"retry.llm_delay":      cfg.Retry.LLMDelay,
		"retry.max_delay":      cfg.Retry.MaxDelay,

		"llm.provider":          cfg.LLM.Provider,
		"llm.model":             cfg.LLM.Model,
		"llm.api_key":           cfg.LLM.APIKey,
		"llm.base_url":          cfg.LLM.BaseURL,
		"llm.timeout":           cfg.LLM.Timeout,
		"llm.max_tokens":        cfg.LLM.MaxTokens,
		"llm.temperature":       cfg.LLM.Temperature,
		"llm.reprompt_on_empty": cfg.LLM.RepromptOnEmpty,

		"rate_limiting.requests_per_second": cfg.RateLimiting.RequestsPerSecond,
		"rate_limiting.burst_size":          cfg.RateLimiting.BurstSize,

		"cache.enabled": cfg.Cache.Enabled,
		"cache.dir":     cfg.Cache.Dir,
		"cache.ttl":     cfg.Cache.TTL,

		"normalize.format":    cfg.Normalize.Format,
		"normalize.max_chars": cfg.Normalize.MaxChars,

		"store.output_dir":  cfg.Store.OutputDir,
		"store.flush_every": cfg.Store.FlushEvery,

		"debug.dir":           cfg.Debug.Dir,
		"debug.keep_repaired": cfg.Debug.KeepRepaired,

		"input.links_file": cfg.Input.LinksFile,

		"collect.pattern":  cfg.Collect.Pattern,
		"collect.timeout":  cfg.Collect.Timeout,
		"collect.attempts": cfg.Collect.Attempts,
		"collect.delay":    cfg.Collect.Delay,

		"output.verbose":    cfg.Output.Verbose,
		"output.log_format": cfg.Output.LogFormat,
	}
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
}

// defaultModel picks a model when only the provider was chosen
func defaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "gpt-4o-mini"
	case "anthropic", "claude":
		return "claude-3-5-haiku-20241022"
	case "ollama":
		return "llama3.1"
	default:
		return "gemini-flash-latest"
	}
}

func newLogger(w io.Writer, format string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
