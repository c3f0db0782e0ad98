package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/caselift/internal/links"
	"github.com/ppiankov/caselift/internal/llm"
	"github.com/ppiankov/caselift/internal/model"
)

var doctorTimeout time.Duration

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check credentials, model access and local files",
	Long: `Doctor checks what a run needs before it starts: the provider credential,
that the model answers, that links.txt is readable and that the output and
debug directories can be written.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", 30*time.Second, "timeout for the provider check")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	failed := 0
	check := func(name string, err error) {
		if err != nil {
			failed++
			fmt.Printf("✗ %-12s %v\n", name, err)
			return
		}
		fmt.Printf("✓ %-12s ok\n", name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()

	provider, err := llm.NewProvider(ctx, llm.ConfigFromModel(cfg))
	check("credential", err)
	if err == nil {
		var reachErr error
		if !provider.IsAvailable(ctx) {
			reachErr = fmt.Errorf("%s model %q did not answer", provider.Name(), cfg.LLM.Model)
		}
		check("model", reachErr)
	}

	urls, invalid, err := links.ReadFile(cfg.Input.LinksFile)
	if err == nil && len(urls) == 0 {
		err = fmt.Errorf("%s has no valid URLs", cfg.Input.LinksFile)
	}
	if err == nil && len(invalid) > 0 {
		fmt.Printf("  %d invalid line(s) in %s will be skipped\n", len(invalid), cfg.Input.LinksFile)
	}
	check("links", err)

	check("output dir", writableDir(cfg.Store.OutputDir))
	check("debug dir", writableDir(cfg.Debug.Dir))

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

// writableDir creates dir if needed and probes it with a temp file
func writableDir(dir string) error {
	if dir == "" {
		return &model.ConfigError{Key: "dir", Msg: "empty path"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".caselift-doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	return errors.Join(f.Close(), os.Remove(filepath.Clean(name)))
}
