package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// ExtractorOptions tunes retries and the request sent to the provider
type ExtractorOptions struct {
	Attempts        uint
	Delay           time.Duration
	MaxDelay        time.Duration
	RepromptOnEmpty bool
	Model           string
	MaxTokens       int
	Logger          *slog.Logger
}

// Extraction is the raw outcome of asking the model about one document
type Extraction struct {
	Text      string
	Empty     bool
	Attempts  int
	Reprompts int
	Model     string
}

// Extractor turns normalized case text into a raw model response
type Extractor struct {
	provider Provider
	opts     ExtractorOptions
	logger   *slog.Logger
}

// NewExtractor wraps provider with retry and re-prompt policy. Zero options
// get the defaults of 4 attempts from 2s, capped at 30s.
func NewExtractor(provider Provider, opts ExtractorOptions) *Extractor {
	if opts.Attempts == 0 {
		opts.Attempts = 4
	}
	if opts.Delay <= 0 {
		opts.Delay = 2 * time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{provider: provider, opts: opts, logger: logger}
}

// Provider returns the wrapped provider
func (e *Extractor) Provider() Provider {
	return e.provider
}

// Extract asks the model for the case record in caseText. Transient
// provider errors are retried; an empty reply is re-asked once with a
// stricter instruction when enabled and is otherwise reported through
// Extraction.Empty, not as an error.
func (e *Extractor) Extract(ctx context.Context, caseText string) (*Extraction, error) {
	req := CompletionRequest{
		System:    BuildSystemPrompt(),
		Prompt:    BuildUserPrompt(caseText),
		Model:     e.opts.Model,
		MaxTokens: e.opts.MaxTokens,
		JSONMode:  true,
	}

	out := &Extraction{}
	resp, err := e.complete(ctx, req, e.opts.Attempts, out)
	if err != nil {
		return nil, err
	}
	out.Model = resp.Model
	out.Text = resp.Text

	if strings.TrimSpace(out.Text) == "" && e.opts.RepromptOnEmpty {
		e.logger.Warn("llm.extract.empty", "provider", e.provider.Name(), "finish_reason", resp.FinishReason, "action", "reprompt")
		strict := req
		strict.System = BuildStrictSystemPrompt()
		out.Reprompts++
		resp, err = e.complete(ctx, strict, 1, out)
		if err != nil {
			return nil, err
		}
		out.Text = resp.Text
	}

	out.Empty = strings.TrimSpace(out.Text) == ""
	if !out.Empty {
		e.logger.Debug("llm.extract.ok",
			"provider", e.provider.Name(),
			"model", out.Model,
			"attempts", out.Attempts,
			"tokens", resp.TokensUsed)
	}
	return out, nil
}

func (e *Extractor) complete(ctx context.Context, req CompletionRequest, attempts uint, out *Extraction) (*CompletionResponse, error) {
	resp, err := retry.DoWithData(
		func() (*CompletionResponse, error) {
			out.Attempts++
			return e.provider.Complete(ctx, req)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(e.opts.Delay),
		retry.MaxDelay(e.opts.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			e.logger.Warn("llm.retry",
				"provider", e.provider.Name(),
				"attempt", n+1,
				"max_attempts", attempts,
				"error", err)
		}),
	)
	if err == nil {
		return resp, nil
	}

	if errors.Is(err, ErrUnauthorized) {
		return nil, fmt.Errorf("%s: %w", e.provider.Name(), err)
	}
	if IsTransient(err) && !errors.Is(err, ErrTransient) {
		return nil, fmt.Errorf("%s gave up after %d attempt(s): %w: %w", e.provider.Name(), out.Attempts, ErrTransient, err)
	}
	if IsTransient(err) {
		return nil, fmt.Errorf("%s gave up after %d attempt(s): %w", e.provider.Name(), out.Attempts, err)
	}
	return nil, fmt.Errorf("%s: %w", e.provider.Name(), err)
}
