package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/birthmark-protocol/birthmark/internal/capture"
	"github.com/birthmark-protocol/birthmark/pkg/color"
	"github.com/birthmark-protocol/birthmark/pkg/errclass"
)

var (
	captureFlags    sessionFlags
	captureSource   string
	captureOut      string
	captureNoRecord bool
)

var captureCmd = &cobra.Command{
	Use:   "capture --source <raw> --out <path>",
	Short: "Run the authenticated capture workflow",
	Long: `Read raw capture bytes from --source, fingerprint them immediately, record
the fingerprint (unless --no-record), then store the bytes at --out with a
sidecar. If recording fails nothing is written.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if captureSource == "" || captureOut == "" {
			return errclass.ErrMissingConfiguration.WithMessage("--source and --out are required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		geo, err := captureFlags.geolocation(cmd.Flags().Changed("lat"), cmd.Flags().Changed("lon"))
		if err != nil {
			return err
		}
		session, err := newSession(cfg, &captureFlags, true)
		if err != nil {
			return err
		}
		session.AutoRecord = !captureNoRecord

		res, err := session.CaptureAuthenticated(cmd.Context(), capture.FileSource{Path: captureSource}, captureOut, geo)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(res)
		}
		fmt.Printf("Captured %s -> %s\n", color.Fingerprint(res.Fingerprint), res.MediaPath)
		if res.TransactionID != "" {
			fmt.Printf("  transaction: %s\n", res.TransactionID)
		} else {
			fmt.Println(color.Warning("  not recorded"))
		}
		if res.SidecarPath != "" {
			fmt.Printf("  sidecar:     %s\n", res.SidecarPath)
		}
		return nil
	},
}

func init() {
	addSessionFlags(captureCmd, &captureFlags)
	captureCmd.Flags().StringVar(&captureSource, "source", "", "raw capture bytes to read")
	captureCmd.Flags().StringVar(&captureOut, "out", "", "where to store the captured media")
	captureCmd.Flags().BoolVar(&captureNoRecord, "no-record", false, "fingerprint and store without submitting")
	rootCmd.AddCommand(captureCmd)
}
