package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/caselift/internal/links"
	"github.com/ppiankov/caselift/internal/llm"
	"github.com/ppiankov/caselift/internal/model"
	"github.com/ppiankov/caselift/internal/pipeline"
	"github.com/ppiankov/caselift/internal/store"
)

var (
	runName          string
	runLinks         string
	runOutputDir     string
	runFlushEvery    int
	runNoCache       bool
	runRespectRobots bool
	runKeepRepaired  bool
	runMarkdown      bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract every URL in links.txt into a workbook",
	Long: `Run processes the URLs in links.txt one at a time:
- Fetch the decision page (retrying timeouts, 429 and 5xx)
- Reduce it to readable text
- Ask the model for the six case fields
- Repair and validate the JSON reply
- Append new cases to <output-dir>/<name>.xlsx, skipping known case numbers

Empty or unusable replies are skipped and saved under the debug directory.
The workbook is saved after every new case, so an interrupted run keeps
everything extracted so far and a rerun only adds what is missing.

Example:
  caselift run --name march-2020
  caselift run --name march-2020 --links march.txt --provider openai
  caselift run --name cases --output-dir ./out --keep-repaired`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runName, "name", "n", "", "workbook name, without .xlsx (required)")
	runCmd.Flags().StringVar(&runLinks, "links", "", "file with one URL per line (default from config: links.txt)")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "directory for the workbook (default from config: excel_files)")
	runCmd.Flags().IntVar(&runFlushEvery, "flush-every", 0, "save the workbook after this many new cases")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "disable the page cache (force fresh fetch)")
	runCmd.Flags().BoolVar(&runRespectRobots, "respect-robots", false, "skip URLs disallowed by robots.txt")
	runCmd.Flags().BoolVar(&runKeepRepaired, "keep-repaired", false, "also save debug files for repaired replies")
	runCmd.Flags().BoolVar(&runMarkdown, "markdown", false, "send Markdown instead of plain text to the model")
	_ = runCmd.MarkFlagRequired("name")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	applyRunFlags(cmd, cfg)

	name, err := workbookName(runName)
	if err != nil {
		return err
	}
	outputPath := filepath.Join(cfg.Store.OutputDir, name+".xlsx")

	urls, invalid, err := links.ReadFile(cfg.Input.LinksFile)
	if err != nil {
		return fmt.Errorf("read links: %w", err)
	}
	for _, line := range invalid {
		logger.Warn("links.invalid", "file", cfg.Input.LinksFile, "line", line.Line, "text", line.Text, "error", line.Err)
	}
	if len(urls) == 0 {
		return fmt.Errorf("no valid URLs in %s", cfg.Input.LinksFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := llm.NewProvider(ctx, llm.ConfigFromModel(cfg))
	if err != nil {
		return err
	}

	p, err := pipeline.NewPipeline(cfg, provider, logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Caselift Run\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Links:      %s (%d URLs, %d invalid)\n", cfg.Input.LinksFile, len(urls), len(invalid))
	fmt.Fprintf(os.Stderr, "  Workbook:   %s\n", outputPath)
	fmt.Fprintf(os.Stderr, "  Model:      %s/%s\n", provider.Name(), cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "  Debug dir:  %s\n", cfg.Debug.Dir)
	fmt.Fprintf(os.Stderr, "  Run ID:     %s\n", p.RunID())
	fmt.Fprintf(os.Stderr, "\n")

	start := time.Now()
	summary, runErr := p.Run(ctx, urls, outputPath)
	if summary != nil {
		printSummary(summary, outputPath, time.Since(start))
	}

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, store.ErrCorrupt):
		return fmt.Errorf("%w\nThe workbook was left untouched; fix or move it, or choose another --name", runErr)
	case errors.Is(runErr, store.ErrLocked):
		return fmt.Errorf("%w\nClose the workbook in Excel (or any other program) and run again", runErr)
	case errors.Is(runErr, llm.ErrUnauthorized):
		return fmt.Errorf("%w\nCheck the %s credential", runErr, llm.APIKeyEnv[provider.Name()])
	case errors.Is(runErr, context.Canceled):
		return fmt.Errorf("interrupted; progress saved to %s", outputPath)
	}
	return runErr
}

func applyRunFlags(cmd *cobra.Command, cfg *model.Config) {
	flags := cmd.Flags()
	if flags.Changed("links") {
		cfg.Input.LinksFile = runLinks
	}
	if flags.Changed("output-dir") {
		cfg.Store.OutputDir = runOutputDir
	}
	if flags.Changed("flush-every") {
		cfg.Store.FlushEvery = runFlushEvery
	}
	if runNoCache {
		cfg.Cache.Enabled = false
	}
	if runRespectRobots {
		cfg.HTTP.RespectRobots = true
	}
	if runKeepRepaired {
		cfg.Debug.KeepRepaired = true
	}
	if runMarkdown {
		cfg.Normalize.Format = "markdown"
	}
}

// workbookName turns --name into a bare file name
func workbookName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if ext := filepath.Ext(name); strings.EqualFold(ext, ".xlsx") {
		name = strings.TrimSuffix(name, ext)
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", &model.ConfigError{Key: "name", Msg: fmt.Sprintf("invalid workbook name %q", name)}
	}
	return name, nil
}

func printSummary(s *model.RunSummary, outputPath string, elapsed time.Duration) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Run Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Documents:          %d\n", s.Total)
	fmt.Fprintf(os.Stderr, "  Appended:           %d (%d repaired)\n", s.Processed, s.Repaired)
	fmt.Fprintf(os.Stderr, "  Duplicates:         %d\n", s.Duplicates)
	fmt.Fprintf(os.Stderr, "  Skipped empty:      %d\n", s.SkippedEmpty)
	fmt.Fprintf(os.Stderr, "  Skipped malformed:  %d\n", s.SkippedMalformed)
	fmt.Fprintf(os.Stderr, "  Fetch failures:     %d\n", s.FailedFetch)
	fmt.Fprintf(os.Stderr, "  Model failures:     %d\n", s.FailedExtract)
	fmt.Fprintf(os.Stderr, "  Rows in workbook:   %d\n", s.Rows)
	fmt.Fprintf(os.Stderr, "  Workbook:           %s\n", outputPath)
	fmt.Fprintf(os.Stderr, "  Elapsed:            %s\n", elapsed.Round(time.Second))
	fmt.Fprintf(os.Stderr, "\n")
}
