package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/jjenkins/edinet/internal/config"
	"github.com/jjenkins/edinet/internal/service"
)

var verifyRoot string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the downloaded XBRL bundles",
	Long: `Verify walks the output tree and opens every {docID}_xbrl.zip. A bundle is
valid when it is a zip archive holding exactly one instance document under
XBRL/PublicDoc. For each valid bundle the number of contexts and facts and the
filer code found in the DEI block are printed.

Examples:
  ./edinet verify
  ./edinet verify --root /data/xbrl-files`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyRoot, "root", "", "Output tree to verify (default $EDINET_OUTPUT_ROOT)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := config.LoadOffline()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	root := cfg.OutputRoot
	if verifyRoot != "" {
		root = verifyRoot
	}

	var valid, invalid int
	verifier := service.NewVerifier(afero.NewOsFs())
	err = verifier.Walk(root, func(res *service.VerifyResult, err error) {
		if err != nil {
			invalid++
			logger.Error("invalid bundle", slog.Any("error", err))
			return
		}
		valid++
		fmt.Printf("%s  contexts=%d facts=%d filer=%s\n", res.Path, res.ContextCount, res.FactCount, res.EdinetCode)
	})
	if err != nil {
		return fmt.Errorf("failed to walk output tree: %w", err)
	}

	fmt.Println("")
	fmt.Println("=== Verification Summary ===")
	fmt.Printf("Valid:           %d\n", valid)
	fmt.Printf("Invalid:         %d\n", invalid)

	if invalid > 0 {
		return fmt.Errorf("%d invalid bundles under %s", invalid, root)
	}
	return nil
}
