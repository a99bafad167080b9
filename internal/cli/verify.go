package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/4n6ix/triagehost/internal/evidence"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <archive>",
	Short: "Verify the integrity of an evidence package",
	Long: `Verify checks an evidence archive against its digest sidecar and the
embedded manifest. Sealed archives require the original password.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().String("password", "", "Password for a sealed archive")
}

func runVerify(cmd *cobra.Command, args []string) error {
	password, _ := cmd.Flags().GetString("password")

	manifest, err := evidence.NewPackager(nil).Verify(args[0], password)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "archive verified: %s\n", args[0])
	fmt.Fprintf(out, "  case:        %s\n", manifest.CaseID)
	fmt.Fprintf(out, "  evidence id: %s\n", manifest.EvidenceID)
	fmt.Fprintf(out, "  created:     %s\n", manifest.CreatedUTC)
	fmt.Fprintf(out, "  examiner:    %s\n", manifest.Examiner)
	fmt.Fprintf(out, "  host:        %s\n", manifest.Hostname)
	for _, f := range manifest.Files {
		fmt.Fprintf(out, "  %s (%d bytes) %s\n", f.Path, f.SizeBytes, f.SHA256)
	}
	return nil
}
