package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/birthmark-protocol/birthmark/internal/ledger"
	"github.com/birthmark-protocol/birthmark/pkg/color"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger diagnostic counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		b, err := openBackend(cfg)
		if err != nil {
			return err
		}
		sr, ok := b.(ledger.StatsReporter)
		if !ok {
			return fmt.Errorf("backend %q does not report stats", cfg.Backend.Name)
		}
		st, err := sr.Stats(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(st)
		}
		fmt.Println(color.Header("Ledger"))
		fmt.Printf("  network:      %s\n", st.NetworkTag)
		fmt.Printf("  records:      %d\n", st.TotalRecords)
		fmt.Printf("  transactions: %d\n", st.TotalTransactions)
		fmt.Printf("  block:        %d\n", st.CurrentBlock)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
