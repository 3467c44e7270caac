package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/use-agent/pagehealth/analyzer"
	"github.com/use-agent/pagehealth/artifacts"
	"github.com/use-agent/pagehealth/browser"
	"github.com/use-agent/pagehealth/config"
	"github.com/use-agent/pagehealth/models"
	"github.com/use-agent/pagehealth/report"
)

type analyzeOptions struct {
	runID    string
	output   string
	dataDir  string
	stealth  bool
	blockAds bool
	fail     bool
	verbose  bool
}

func newAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze URL",
		Short: "Run a page-health check against URL",
		Long: `Run the load, screenshot, scroll, screenshot workflow against URL and
print the resulting analysis.

Examples:
  # Check a page, human readable
  pagehealth-cli analyze https://example.com

  # Keep screenshots in ./out and print JSON
  pagehealth-cli analyze https://example.com --data-dir ./out -o json

  # Exit non-zero when anything above low severity was found
  pagehealth-cli analyze https://example.com/missing --fail`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.runID, "run-id", "", "Run identifier (default: random UUID)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", report.FormatHuman, "Output format (human, json, yaml)")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Artifact root directory (default: $DATA_DIR or /data)")
	cmd.Flags().BoolVar(&opts.stealth, "stealth", false, "Mask common headless browser fingerprints")
	cmd.Flags().BoolVar(&opts.blockAds, "block-ads", false, "Block well-known ad and tracker domains")
	cmd.Flags().BoolVar(&opts.fail, "fail", false, "Exit with an error when critical, high or medium issues are found")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log analyzer progress to stderr")

	return cmd
}

func runAnalyze(ctx context.Context, out io.Writer, url string, opts *analyzeOptions) error {
	cfg := config.Load()
	if opts.dataDir != "" {
		cfg.Artifacts.DataDir = opts.dataDir
	}
	if opts.runID == "" {
		opts.runID = uuid.NewString()
	}
	if err := artifacts.ValidateRunID(opts.runID); err != nil {
		return err
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	human := opts.output == report.FormatHuman
	if human {
		cyan := color.New(color.FgCyan, color.Bold)
		fmt.Fprintln(out)
		cyan.Fprintln(out, "Page health check")
		fmt.Fprintf(out, "URL:    %s\n", url)
		fmt.Fprintf(out, "Run ID: %s\n\n", opts.runID)
	}

	pool := browser.NewPool(cfg.Browser)
	defer pool.Close()

	store := artifacts.NewStore(cfg.Artifacts.DataDir)
	an := analyzer.New(pool, store, cfg.Analyzer)

	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond)
	s.Suffix = " Loading page in headless browser..."
	s.Writer = os.Stderr
	if human {
		s.Start()
	}
	result := an.Analyze(ctx, &models.RunRequest{
		URL:      url,
		RunID:    opts.runID,
		Stealth:  opts.stealth,
		BlockAds: opts.blockAds,
	})
	s.Stop()

	if err := report.Render(out, result, opts.output); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if human {
		fmt.Fprintf(out, "\nScreenshots: %s\n", store.RunDir(opts.runID))
	}

	if opts.fail && !report.Healthy(result) {
		return errors.New("page is unhealthy")
	}
	return nil
}
