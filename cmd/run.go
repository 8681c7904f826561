package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var runFlags pipelineFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover filings and download them in one pass",
	Long: `Run performs discover followed by download.

With no flags it scans the configured window, writes documents.json and
fills the output tree. The retrieval phase only starts after discovery has
finished and the manifest has been written.

Examples:
  # Full pipeline over the configured window
  ./edinet run

  # One day, annual reports only
  ./edinet run --from 2024-06-27 --to 2024-06-27 --doc-types 120

  # Expose progress to Prometheus during a long run
  ./edinet run --metrics-addr :9090`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRangeFlags(runCmd, &runFlags)
	addArtifactFlags(runCmd, &runFlags)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	ctx, cancel := signalContext(logger)
	defer cancel()

	env, err := setup(ctx, logger, &runFlags)
	if err != nil {
		return err
	}
	defer env.Close()

	importer := env.importer(&runFlags)

	discoverStats, filings, err := importer.Discover(ctx, env.cfg.From, env.cfg.To)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("discovery cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("discovery failed: %w", err)
	}
	importer.PrintDiscoverSummary(discoverStats)

	logger.Info("starting retrieval", slog.Int("filings", len(filings)))
	stats, err := importer.Retrieve(ctx, filings)
	importer.PrintRetrieveSummary(stats)
	if err != nil {
		return fmt.Errorf("retrieval cancelled: %w", err)
	}

	if stats.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errFilingsFailed, stats.Failed, stats.Total)
	}
	return nil
}
