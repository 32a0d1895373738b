package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/birthmark-protocol/birthmark/pkg/color"
)

var recordFlags sessionFlags

var recordCmd = &cobra.Command{
	Use:   "record <file>",
	Short: "Fingerprint a file and record it on the ledger",
	Long: `Fingerprint an existing media file, submit the fingerprint to the ledger and
write a sidecar next to the file holding the accepted record.

Geolocation is optional; pass --lat and --lon together or not at all.

Note: the memory backend lives only as long as this process. Use
"birthmark serve" with --backend gateway to keep records across commands.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		geo, err := recordFlags.geolocation(cmd.Flags().Changed("lat"), cmd.Flags().Changed("lon"))
		if err != nil {
			return err
		}
		session, err := newSession(cfg, &recordFlags, true)
		if err != nil {
			return err
		}

		res, err := session.RecordFile(cmd.Context(), args[0], geo)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(res)
		}
		fmt.Printf("Recorded %s\n", color.Fingerprint(res.Fingerprint))
		fmt.Printf("  transaction: %s\n", res.TransactionID)
		if res.Record.BlockNumber != nil {
			fmt.Printf("  block:       %d\n", *res.Record.BlockNumber)
		}
		if res.SidecarPath != "" {
			fmt.Printf("  sidecar:     %s\n", res.SidecarPath)
		}
		return nil
	},
}

func addSessionFlags(cmd *cobra.Command, f *sessionFlags) {
	cmd.Flags().StringVar(&f.submitter, "submitter", "", "submitter id (overrides submitter.id)")
	cmd.Flags().StringVar(&f.algorithm, "algorithm", "", "digest algorithm (overrides fingerprint.algorithm)")
	cmd.Flags().StringVar(&f.sidecar, "sidecar", "", "sidecar format: json, cbor or none (overrides sidecar.format)")
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "capture latitude")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "capture longitude")
}

func init() {
	addSessionFlags(recordCmd, &recordFlags)
	rootCmd.AddCommand(recordCmd)
}
