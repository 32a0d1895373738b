package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/birthmark-protocol/birthmark/internal/capture"
	"github.com/birthmark-protocol/birthmark/pkg/color"
)

var errNotAuthentic = errors.New("not authentic")

var verifyFlags sessionFlags

var verifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Verify a file against the ledger",
	Long: `Fingerprint a file and look the fingerprint up on the ledger. A file is
authentic when the ledger holds its fingerprint. When a sidecar is present
its algorithm is used and its record is compared with the ledger's.

Exits non-zero when the file is not authentic.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		session, err := newSession(cfg, &verifyFlags, false)
		if err != nil {
			return err
		}

		v, err := session.VerifyFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			if err := outputJSON(v); err != nil {
				return err
			}
		} else {
			printVerification(v)
		}
		if !v.Authentic {
			return fmt.Errorf("%s: %w", args[0], errNotAuthentic)
		}
		return nil
	},
}

func printVerification(v *capture.Verification) {
	if v.Authentic {
		fmt.Printf("%s %s\n", color.Success("Authentic:"), v.Path)
	} else {
		fmt.Printf("%s %s\n", color.Error("Not found on ledger:"), v.Path)
	}
	fmt.Printf("  fingerprint: %s (%s)\n", color.Fingerprint(v.Fingerprint), v.Algorithm)
	if v.Record != nil {
		fmt.Printf("  captured at: %s\n", v.Record.CapturedAt.Format("2006-01-02T15:04:05.000Z07:00"))
		fmt.Printf("  submitter:   %s\n", v.Record.SubmitterID)
		fmt.Printf("  transaction: %s\n", v.Record.TxID())
	}
	switch v.SidecarStatus {
	case capture.SidecarMatch:
		fmt.Printf("  sidecar:     %s\n", color.Success(v.SidecarStatus))
	case capture.SidecarAbsent:
		fmt.Printf("  sidecar:     %s\n", color.Dim(v.SidecarStatus))
	default:
		fmt.Printf("  sidecar:     %s (%s)\n", color.Warning(v.SidecarStatus), v.SidecarDetail)
	}
}

func init() {
	verifyCmd.Flags().StringVar(&verifyFlags.algorithm, "algorithm", "", "digest algorithm when no sidecar names one")
	rootCmd.AddCommand(verifyCmd)
}
