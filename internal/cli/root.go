package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/birthmark-protocol/birthmark/pkg/color"
)

var (
	jsonOutput  bool
	noColor     bool
	configPath  string
	backendName string
	backendOpts map[string]string

	rootCmd = &cobra.Command{
		Use:   "birthmark",
		Short: "Birthmark - content authenticity ledger",
		Long: `Birthmark fingerprints media at the moment of capture and records the
fingerprint on a ledger, so anyone holding the file can later prove it is
unmodified by looking the fingerprint up.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColor)
		},
	}
)

func init() {
	addPersistentFlags(rootCmd)
}

func addPersistentFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.BoolVar(&jsonOutput, "json", false, "output in JSON format")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.StringVar(&configPath, "config", "", "config file (default $BIRTHMARK_CONFIG or ~/.birthmark/config.yaml)")
	flags.StringVar(&backendName, "backend", "", "ledger backend (overrides backend.name)")
	flags.StringToStringVar(&backendOpts, "backend-opt", nil, "backend option key=value (repeatable, merged over backend.options)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmtErr("%v", err)
		if hint := suggestionFor(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		os.Exit(1)
	}
}

// outputJSON prints v as JSON if --json flag is set, otherwise does nothing.
func outputJSON(v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
