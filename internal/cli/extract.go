package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/caselift/internal/llm"
	"github.com/ppiankov/caselift/internal/model"
	"github.com/ppiankov/caselift/internal/pipeline"
)

var (
	extractTimeout time.Duration
	extractNoCache bool
)

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract <url>",
	Short: "Extract one decision page and print the record as JSON",
	Long: `Extract runs a single URL through fetch, normalization, the model and
validation, and prints the resulting case record. Nothing is written to a
workbook; debug files are still saved for empty or unusable replies.

Example:
  caselift extract https://elibrary.judiciary.gov.ph/thebookshelf/showdocs/1/12345
  caselift extract <url> --provider ollama --model llama3.1`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().DurationVar(&extractTimeout, "timeout", 5*time.Minute, "overall timeout")
	extractCmd.Flags().BoolVar(&extractNoCache, "no-cache", false, "disable the page cache (force fresh fetch)")
}

type extractOutput struct {
	URL            string            `json:"url"`
	Classification string            `json:"classification"`
	Record         *model.CaseRecord `json:"record,omitempty"`
	MissingFields  []string          `json:"missing_fields,omitempty"`
	Repairs        []string          `json:"repairs,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	Artifact       string            `json:"artifact,omitempty"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	url := args[0]
	cfg := appConfig
	if extractNoCache {
		cfg.Cache.Enabled = false
	}

	ctx, cancel := context.WithTimeout(context.Background(), extractTimeout)
	defer cancel()

	provider, err := llm.NewProvider(ctx, llm.ConfigFromModel(cfg))
	if err != nil {
		return err
	}
	p, err := pipeline.NewPipeline(cfg, provider, logger)
	if err != nil {
		return err
	}

	res := p.ProcessURL(ctx, url)
	if res.Err != nil {
		return res.Err
	}

	out := extractOutput{
		URL:            url,
		Classification: string(res.Attempt.Classification),
		MissingFields:  res.Attempt.MissingFields,
		Repairs:        res.Attempt.Repairs,
		Reason:         res.Attempt.Reason,
		Record:         res.Record,
		Artifact:       res.ArtifactPath,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if res.Record == nil {
		return fmt.Errorf("no record extracted (%s)", res.Attempt.Classification)
	}
	return nil
}
