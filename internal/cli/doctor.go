package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/birthmark-protocol/birthmark/internal/doctor"
	"github.com/birthmark-protocol/birthmark/pkg/color"
)

var (
	doctorStrict bool
	doctorScan   []string
)

var errUnhealthy = errors.New("critical findings")

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check backend, journal and sidecar health",
	Long: `Check that the configured backend answers, that the journal hash chain is
intact, and that every sidecar under the --scan directories is readable and
still has its media file.

With --strict each media file is re-fingerprinted against its sidecar and
its record is looked up on the ledger.

Examples:
  birthmark doctor
  birthmark doctor --scan ~/Pictures/birthmark --strict`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		b, err := openBackend(cfg)
		if err != nil {
			return err
		}

		d := doctor.New(b, doctor.Options{
			JournalPath: cfg.Journal.Path,
			ScanDirs:    doctorScan,
			Engine:      newEngine(),
		})
		result, err := d.Check(contextOf(cmd), doctorStrict)
		if err != nil {
			return err
		}

		if jsonOutput {
			if err := outputJSON(result); err != nil {
				return err
			}
		} else {
			printDoctor(result)
		}
		if !result.Healthy {
			return errUnhealthy
		}
		return nil
	},
}

func printDoctor(r *doctor.Result) {
	for _, f := range r.Findings {
		label := fmt.Sprintf("%-8s", f.Severity)
		switch f.Severity {
		case doctor.SeverityCritical:
			label = color.Error(label)
		case doctor.SeverityWarning:
			label = color.Warning(label)
		default:
			label = color.Dim(label)
		}
		line := fmt.Sprintf("%s %-8s %s", label, f.Category, f.Description)
		if f.Path != "" {
			line += "  " + f.Path
		}
		fmt.Println(line)
	}
	if r.Healthy {
		fmt.Println(color.Successf("Healthy (%d sidecars checked)", r.Sidecars))
	}
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "re-fingerprint media and confirm ledger records")
	doctorCmd.Flags().StringSliceVar(&doctorScan, "scan", nil, "directory to scan for sidecars (repeatable)")
	rootCmd.AddCommand(doctorCmd)
}
