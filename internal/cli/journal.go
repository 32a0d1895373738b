package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/birthmark-protocol/birthmark/internal/audit"
	"github.com/birthmark-protocol/birthmark/pkg/color"
	"github.com/birthmark-protocol/birthmark/pkg/errclass"
)

var journalPath string

var journalCmd = &cobra.Command{
	Use:   "journal <command>",
	Short: "Inspect the local submission journal",
	Long: `The journal is an append-only JSONL trail of this machine's submissions,
enabled by journal.path. Each entry carries the hash of the previous one.`,
	DisableFlagsInUseLine: true,
}

var journalVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the journal hash chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := journalPath
		if path == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path = cfg.Journal.Path
		}
		if path == "" {
			return errclass.ErrMissingConfiguration.WithMessage("no journal: pass --path or set journal.path")
		}

		report, err := audit.VerifyChain(path)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(report)
		}
		fmt.Printf("%s %d entries in %s\n", color.Success("Chain intact:"), report.Entries, path)
		return nil
	},
}

func init() {
	journalVerifyCmd.Flags().StringVar(&journalPath, "path", "", "journal file (overrides journal.path)")
	journalCmd.AddCommand(journalVerifyCmd)
	rootCmd.AddCommand(journalCmd)
}
