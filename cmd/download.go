package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jjenkins/edinet/internal/service"
)

var downloadFlags pipelineFlags
var downloadDryRun bool

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the artifacts of every filing in the manifest",
	Long: `Download reads the manifest written by discover and retrieves each filing
into {root}/{edinetCode}/{YYYY-MM-DD}_{docID}_{category}/: a metadata.json
snapshot plus the XBRL, PDF and CSV bundles the registry marks as available.

Filings are processed one at a time. Filings with an unknown report type are
skipped with a warning. A filing with a failed download is reported and the
run continues; the exit status is non-zero if any filing failed.

Examples:
  # Download everything in documents.json
  ./edinet download

  # Show what would be written
  ./edinet download --dry-run

  # Include attachments and English bundles
  ./edinet download --attachments --english`,
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	addArtifactFlags(downloadCmd, &downloadFlags)
	downloadCmd.Flags().StringVar(&downloadFlags.manifest, "manifest", "", "Manifest path (default $EDINET_MANIFEST)")
	downloadCmd.Flags().BoolVar(&downloadDryRun, "dry-run", false, "Print the planned folders and files without downloading")
}

func runDownload(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	ctx, cancel := signalContext(logger)
	defer cancel()

	env, err := setup(ctx, logger, &downloadFlags)
	if err != nil {
		return err
	}
	defer env.Close()

	filings, err := service.ReadManifest(env.fs, env.cfg.ManifestPath)
	if err != nil {
		return err
	}

	importer := env.importer(&downloadFlags)

	if downloadDryRun {
		printPlan(importer.Plan(filings))
		return nil
	}

	stats, err := importer.Retrieve(ctx, filings)
	importer.PrintRetrieveSummary(stats)
	if err != nil {
		return fmt.Errorf("download cancelled: %w", err)
	}

	if stats.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errFilingsFailed, stats.Failed, stats.Total)
	}
	return nil
}

func printPlan(plans []service.PlannedFiling) {
	for i, p := range plans {
		if p.Err != nil {
			fmt.Printf("[%d/%d] %s: skip (%v)\n", i+1, len(plans), p.Filing.DocID, p.Err)
			continue
		}
		fmt.Printf("[%d/%d] %s\n", i+1, len(plans), p.Folder)
		fmt.Printf("        metadata.json\n")
		for _, req := range p.Requests {
			fmt.Printf("        %s\n", req.Path)
		}
	}
}
