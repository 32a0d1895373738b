package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/birthmark-protocol/birthmark/pkg/color"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

// errNotFound is returned when a looked-up fingerprint is absent so the
// process exits non-zero.
var errNotFound = errors.New("not found")

var lookupCmd = &cobra.Command{
	Use:   "lookup <fingerprint>",
	Short: "Look up a fingerprint on the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		b, err := openBackend(cfg)
		if err != nil {
			return err
		}

		rec, err := b.Lookup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			notFound := fmt.Errorf("%s: %w", args[0], errNotFound)
			if jsonOutput {
				return errors.Join(notFound, outputJSON(map[string]any{"fingerprint": args[0], "found": false}))
			}
			return notFound
		}

		if jsonOutput {
			return outputJSON(rec)
		}
		printRecord(rec)
		return nil
	},
}

func printRecord(rec *model.Record) {
	fmt.Printf("%s %s\n", color.Header("Fingerprint:"), color.Fingerprint(rec.Fingerprint))
	fmt.Printf("  captured at: %s\n", rec.CapturedAt.Format("2006-01-02T15:04:05.000Z07:00"))
	fmt.Printf("  submitter:   %s\n", rec.SubmitterID)
	if rec.Geolocation != nil {
		fmt.Printf("  location:    %s\n", rec.Geolocation)
	}
	fmt.Printf("  transaction: %s\n", rec.TxID())
	if rec.BlockNumber != nil {
		fmt.Printf("  block:       %d\n", *rec.BlockNumber)
	}
	fmt.Printf("  network:     %s\n", rec.NetworkTag)
}

func init() {
	rootCmd.AddCommand(lookupCmd)
}
