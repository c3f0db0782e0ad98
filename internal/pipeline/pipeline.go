package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/caselift/internal/artifact"
	"github.com/ppiankov/caselift/internal/cache"
	"github.com/ppiankov/caselift/internal/extract"
	"github.com/ppiankov/caselift/internal/llm"
	"github.com/ppiankov/caselift/internal/model"
	"github.com/ppiankov/caselift/internal/ratelimit"
	"github.com/ppiankov/caselift/internal/store"
	"github.com/ppiankov/caselift/internal/util"
	"github.com/ppiankov/caselift/internal/validate"
)

// DocumentFetcher retrieves one document page
type DocumentFetcher interface {
	FetchWithRetry(ctx context.Context, rawURL string) (*FetchResult, error)
}

// Normalizer reduces a page to the text sent to the model
type Normalizer interface {
	Normalize(rawURL, page string) string
}

// CaseExtractor asks the model for the case record in a text
type CaseExtractor interface {
	Extract(ctx context.Context, caseText string) (*llm.Extraction, error)
}

// Deps are the collaborators of a Pipeline
type Deps struct {
	Fetcher      DocumentFetcher
	Normalizer   Normalizer
	Extractor    CaseExtractor
	Artifacts    *artifact.Writer
	RunID        string
	FlushEvery   int
	KeepRepaired bool
	Logger       *slog.Logger
}

// Pipeline drives documents from URL to spreadsheet row, one at a time
type Pipeline struct {
	fetcher      DocumentFetcher
	normalizer   Normalizer
	extractor    CaseExtractor
	validator    *validate.Validator
	artifacts    *artifact.Writer
	runID        string
	flushEvery   int
	keepRepaired bool
	logger       *slog.Logger
}

// New assembles a pipeline from explicit collaborators
func New(d Deps) (*Pipeline, error) {
	if d.Fetcher == nil || d.Normalizer == nil || d.Extractor == nil {
		return nil, errors.New("pipeline: fetcher, normalizer and extractor are required")
	}
	validator, err := validate.NewValidator()
	if err != nil {
		return nil, err
	}
	if d.RunID == "" {
		d.RunID = uuid.NewString()
	}
	if d.FlushEvery <= 0 {
		d.FlushEvery = 1
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Artifacts == nil {
		d.Artifacts = artifact.NewWriter("debug", d.RunID)
	}
	return &Pipeline{
		fetcher:      d.Fetcher,
		normalizer:   d.Normalizer,
		extractor:    d.Extractor,
		validator:    validator,
		artifacts:    d.Artifacts,
		runID:        d.RunID,
		flushEvery:   d.FlushEvery,
		keepRepaired: d.KeepRepaired,
		logger:       d.Logger.With("run_id", d.RunID),
	}, nil
}

// NewPipeline creates a pipeline from the run configuration and a ready
// provider
func NewPipeline(cfg *model.Config, provider llm.Provider, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fetcher := NewFetcher(cfg.HTTP.Timeout, cfg.HTTP.UserAgent, cfg.HTTP.MaxBodyBytes,
		cfg.HTTP.InsecureTLS, cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)
	fetcher.SetRetry(cfg.Retry.FetchAttempts, cfg.Retry.FetchDelay, cfg.Retry.MaxDelay)
	fetcher.SetLogger(logger)
	fetcher.SetLimiter(ratelimit.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize))
	if cfg.HTTP.RespectRobots {
		fetcher.SetRobots(util.NewRobotsChecker(cfg.HTTP.UserAgent, cfg.HTTP.Timeout, fetcher.Client()))
	}
	if cfg.Cache.Enabled {
		fetcher.SetCache(cache.NewPages(cache.NewLayeredCache(cfg.Cache.TTL, cfg.Cache.Dir, cfg.Cache.TTL), cfg.Cache.TTL))
	}

	extractor := llm.NewExtractor(provider, llm.ExtractorOptions{
		Attempts:        cfg.Retry.LLMAttempts,
		Delay:           cfg.Retry.LLMDelay,
		MaxDelay:        cfg.Retry.MaxDelay,
		RepromptOnEmpty: cfg.LLM.RepromptOnEmpty,
		Model:           cfg.LLM.Model,
		MaxTokens:       cfg.LLM.MaxTokens,
		Logger:          logger,
	})

	runID := uuid.NewString()
	return New(Deps{
		Fetcher:      fetcher,
		Normalizer:   extract.NewNormalizer(nil, cfg.Normalize.Format, cfg.Normalize.MaxChars),
		Extractor:    extractor,
		Artifacts:    artifact.NewWriter(cfg.Debug.Dir, runID),
		RunID:        runID,
		FlushEvery:   cfg.Store.FlushEvery,
		KeepRepaired: cfg.Debug.KeepRepaired,
		Logger:       logger,
	})
}

// RunID identifies this pipeline's run in logs and artifact names
func (p *Pipeline) RunID() string {
	return p.runID
}

// DocumentResult is the outcome of one URL
type DocumentResult struct {
	URL          string
	Outcome      model.Outcome // Empty when a record was produced; Run sets appended or duplicate
	Attempt      *model.ExtractionAttempt
	Record       *model.CaseRecord
	ArtifactPath string
	Err          error
	Elapsed      time.Duration
}

// ProcessURL fetches, normalizes, extracts and classifies one document. It
// does not touch the store. Failures are reported in the result.
func (p *Pipeline) ProcessURL(ctx context.Context, rawURL string) DocumentResult {
	start := time.Now()
	res := p.process(ctx, rawURL)
	res.Elapsed = time.Since(start)
	return res
}

func (p *Pipeline) process(ctx context.Context, rawURL string) DocumentResult {
	res := DocumentResult{URL: rawURL}

	fetched, err := p.fetcher.FetchWithRetry(ctx, rawURL)
	if err != nil {
		res.Outcome = model.OutcomeFetchFailed
		res.Err = err
		return res
	}

	pageURL := fetched.FinalURL
	if pageURL == "" {
		pageURL = rawURL
	}
	text := p.normalizer.Normalize(pageURL, fetched.HTML)
	if strings.TrimSpace(text) == "" {
		att := model.ExtractionAttempt{Classification: model.ClassEmpty, Reason: "page has no readable text"}
		res.Attempt = &att
		res.Outcome = model.OutcomeEmpty
		p.writeArtifact(&res, fetched.HTML)
		return res
	}

	ext, err := p.extractor.Extract(ctx, text)
	if err != nil {
		res.Outcome = model.OutcomeExtractFailed
		res.Err = err
		return res
	}

	var att model.ExtractionAttempt
	if ext.Empty {
		att = model.ExtractionAttempt{
			Raw:            ext.Text,
			Classification: model.ClassEmpty,
			Reason:         "model returned an empty response",
		}
	} else {
		att = p.validator.Classify(ext.Text)
	}
	res.Attempt = &att

	switch att.Classification {
	case model.ClassEmpty:
		res.Outcome = model.OutcomeEmpty
		p.writeArtifact(&res, text)
	case model.ClassUnrecoverable:
		res.Outcome = model.OutcomeMalformed
		p.writeArtifact(&res, text)
	case model.ClassRepaired:
		res.Record = att.Record
		if p.keepRepaired {
			p.writeArtifact(&res, text)
		}
	default:
		res.Record = att.Record
	}
	return res
}

func (p *Pipeline) writeArtifact(res *DocumentResult, input string) {
	path, err := p.artifacts.Write(res.URL, *res.Attempt, input)
	if err != nil {
		p.logger.Warn("artifact.write.failed", "url", res.URL, "error", err)
		return
	}
	res.ArtifactPath = path
}

// Run processes urls in order and merges the records into the workbook at
// outputPath. The workbook is loaded before any network activity; a load,
// flush or authorization error stops the run. On cancellation the records
// gathered so far are flushed and the context error is returned along
// with the partial summary.
func (p *Pipeline) Run(ctx context.Context, urls []string, outputPath string) (*model.RunSummary, error) {
	table, err := store.Load(outputPath)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", outputPath, err)
	}

	summary := &model.RunSummary{RunID: p.runID}
	pending := 0
	flush := func() error {
		if !table.Dirty() {
			return nil
		}
		if err := table.Flush(outputPath); err != nil {
			return fmt.Errorf("flush %s: %w", outputPath, err)
		}
		summary.Flushes++
		pending = 0
		p.logger.Debug("store.flush", "path", outputPath, "rows", table.Len())
		return nil
	}
	stop := func(cause error) (*model.RunSummary, error) {
		if err := flush(); err != nil {
			cause = errors.Join(cause, err)
		}
		summary.Rows = table.Len()
		return summary, cause
	}

	p.logger.Info("pipeline.start", "urls", len(urls), "output", outputPath, "existing_rows", table.Len())

	for i, rawURL := range urls {
		if err := ctx.Err(); err != nil {
			return stop(err)
		}

		res := p.ProcessURL(ctx, rawURL)
		if res.Err != nil && ctx.Err() != nil {
			return stop(ctx.Err())
		}
		if errors.Is(res.Err, llm.ErrUnauthorized) {
			return stop(res.Err)
		}

		if res.Record != nil {
			added, err := table.Upsert(*res.Record)
			switch {
			case err != nil:
				res.Outcome = model.OutcomeMalformed
				res.Err = err
			case added:
				res.Outcome = model.OutcomeAppended
				pending++
			default:
				res.Outcome = model.OutcomeDuplicate
			}
			if err == nil && res.Attempt.Classification == model.ClassRepaired {
				summary.Repaired++
			}
		}
		summary.Record(res.Outcome)
		p.logResult(i+1, len(urls), res)

		if pending >= p.flushEvery {
			if err := flush(); err != nil {
				summary.Rows = table.Len()
				return summary, err
			}
		}
	}

	if err := flush(); err != nil {
		summary.Rows = table.Len()
		return summary, err
	}
	summary.Rows = table.Len()
	p.logger.Info("pipeline.done",
		"processed", summary.Processed,
		"duplicates", summary.Duplicates,
		"skipped", summary.Skipped(),
		"rows", summary.Rows)
	return summary, nil
}

func (p *Pipeline) logResult(n, total int, res DocumentResult) {
	attrs := []any{
		"url", res.URL,
		"n", n,
		"of", total,
		"outcome", res.Outcome,
		"elapsed_ms", res.Elapsed.Milliseconds(),
	}
	if res.Attempt != nil {
		attrs = append(attrs, "classification", res.Attempt.Classification)
		if len(res.Attempt.MissingFields) > 0 {
			attrs = append(attrs, "missing", res.Attempt.MissingFields)
		}
		if res.Attempt.Reason != "" {
			attrs = append(attrs, "reason", res.Attempt.Reason)
		}
	}
	if res.ArtifactPath != "" {
		attrs = append(attrs, "artifact", res.ArtifactPath)
	}
	if res.Err != nil {
		attrs = append(attrs, "error", res.Err)
	}

	switch res.Outcome {
	case model.OutcomeAppended, model.OutcomeDuplicate:
		p.logger.Info("pipeline.document", attrs...)
	default:
		p.logger.Warn("pipeline.skip", attrs...)
	}
}
