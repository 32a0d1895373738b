package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/birthmark-protocol/birthmark/internal/audit"
	"github.com/birthmark-protocol/birthmark/internal/batch"
	"github.com/birthmark-protocol/birthmark/pkg/color"
	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/progress"
)

var (
	batchSubmitter  string
	batchAlgorithm  string
	batchNoProgress bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>...",
	Short: "Fingerprint many files and submit them in one batch",
	Long: `Fingerprint every file, then submit all fingerprints in one ledger batch.
If any file cannot be read nothing is submitted. Batches are not atomic on
the ledger: on failure the entries accepted before it stay recorded and
are listed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		submitter := cfg.Submitter.ID
		if batchSubmitter != "" {
			submitter = batchSubmitter
		}
		if submitter == "" {
			return errclass.ErrMissingConfiguration.WithMessage("submitter id required: pass --submitter or set submitter.id")
		}
		alg, err := resolveAlgorithm(batchAlgorithm, cfg)
		if err != nil {
			return err
		}
		b, err := openBackend(cfg)
		if err != nil {
			return err
		}

		items := make([]batch.Item, len(args))
		for i, path := range args {
			items[i] = batch.Item{Path: path, SubmitterID: submitter}
		}
		sub := batch.New(newEngine(), b, alg)
		if cfg.Journal.Path != "" {
			sub.WithJournal(audit.NewFileAppender(cfg.Journal.Path))
		}
		if showProgress() {
			bar := progress.NewBar(os.Stderr)
			sub.WithProgress(bar.Callback())
			defer bar.Finish()
		}
		results, err := sub.Submit(cmd.Context(), items)

		if jsonOutput {
			if jerr := outputJSON(results); jerr != nil && err == nil {
				return jerr
			}
		} else {
			for _, r := range results {
				fmt.Printf("%s  %s  %s\n", r.TransactionID, color.Fingerprint(r.Fingerprint), r.Path)
			}
			if err == nil {
				fmt.Println(color.Successf("Submitted %d files", len(results)))
			}
		}
		if err != nil && len(results) > 0 {
			return fmt.Errorf("%d of %d submitted: %w", len(results), len(items), err)
		}
		return err
	},
}

// showProgress draws the bar only for humans watching a terminal.
func showProgress() bool {
	return !jsonOutput && !batchNoProgress && term.IsTerminal(int(os.Stderr.Fd()))
}

func init() {
	batchCmd.Flags().StringVar(&batchSubmitter, "submitter", "", "submitter id (overrides submitter.id)")
	batchCmd.Flags().StringVar(&batchAlgorithm, "algorithm", "", "digest algorithm (overrides fingerprint.algorithm)")
	batchCmd.Flags().BoolVar(&batchNoProgress, "no-progress", false, "disable the progress bar")
	rootCmd.AddCommand(batchCmd)
}
