package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var discoverFlags pipelineFlags

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List filings over a date range and write the manifest",
	Long: `Discover requests the registry's listing for every day between --from and
--to, keeps annual (120), quarterly (140) and semi-annual (160) reports that
were not filed for a fund, and writes them to the manifest.

A failed listing request aborts discovery without writing the manifest.

Examples:
  # Scan the configured window
  ./edinet discover

  # Scan a single day
  ./edinet discover --from 2024-03-01 --to 2024-03-01

  # Keep only annual reports
  ./edinet discover --doc-types 120`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	addRangeFlags(discoverCmd, &discoverFlags)
	discoverCmd.Flags().StringVar(&discoverFlags.manifest, "manifest", "", "Manifest path (default $EDINET_MANIFEST)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	ctx, cancel := signalContext(logger)
	defer cancel()

	env, err := setup(ctx, logger, &discoverFlags)
	if err != nil {
		return err
	}
	defer env.Close()

	importer := env.importer(&discoverFlags)

	stats, _, err := importer.Discover(ctx, env.cfg.From, env.cfg.To)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("discovery cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("discovery failed: %w", err)
	}
	importer.PrintDiscoverSummary(stats)

	logger.Info("discovery finished", slog.Int("retained", stats.Retained))
	return nil
}
