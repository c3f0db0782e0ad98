package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/caselift/internal/links"
)

var (
	collectFilter  string
	collectAll     bool
	collectOut     string
	collectTimeout time.Duration
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect <listing-url>",
	Short: "Collect decision links from a listing page",
	Long: `Collect fetches a listing page (for example a month of decisions on the
Supreme Court E-Library) and prints every link that points at a single
decision, in page order and without duplicates. Use --out to write them
straight into links.txt for 'caselift run'.

Example:
  caselift collect https://elibrary.judiciary.gov.ph/thebookshelf/docmonth/Mar/2020/1
  caselift collect <listing-url> --out links.txt
  caselift collect <listing-url> --filter '/showdocs/1/' --timeout 30s
  caselift collect <listing-url> --all`,
	Args: cobra.ExactArgs(1),
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().StringVar(&collectFilter, "filter", "", "regexp a link must match (default: single-decision pages)")
	collectCmd.Flags().BoolVar(&collectAll, "all", false, "keep every link on the page")
	collectCmd.Flags().StringVarP(&collectOut, "out", "o", "", "write links to this file instead of stdout")
	collectCmd.Flags().DurationVar(&collectTimeout, "timeout", 0, "request timeout per attempt (default from config: 15s)")
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg := appConfig

	pattern := cfg.Collect.Pattern
	if collectFilter != "" {
		pattern = collectFilter
	}
	if collectAll {
		pattern = ""
	}
	timeout := cfg.Collect.Timeout
	if collectTimeout > 0 {
		timeout = collectTimeout
	}

	collector, err := links.NewCollector(links.CollectorOptions{
		Pattern:   pattern,
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   timeout,
		Attempts:  cfg.Collect.Attempts,
		Delay:     cfg.Collect.Delay,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	found, err := collector.Collect(ctx, args[0])
	if err != nil {
		return err
	}

	if collectOut == "" {
		for _, u := range found {
			fmt.Println(u)
		}
		return nil
	}

	if err := links.WriteFile(collectOut, found); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Wrote %d links to %s\n", len(found), collectOut)
	return nil
}
