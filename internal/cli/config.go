package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/birthmark-protocol/birthmark/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Manage birthmark configuration",
	Long: `Manage birthmark configuration.

The config file is --config, else $BIRTHMARK_CONFIG, else
~/.birthmark/config.yaml. Files ending in .json or .jsonc are read as JSON
with comments. Every setting can be overridden from the environment:

  BIRTHMARK_BACKEND_NAME          ledger backend (memory, gateway)
  BIRTHMARK_BACKEND_OPTIONS       backend options, key:value,key:value
  BIRTHMARK_FINGERPRINT_ALGORITHM digest algorithm
  BIRTHMARK_SUBMITTER_ID          submitter id
  BIRTHMARK_SIDECAR_FORMAT        json, cbor or none
  BIRTHMARK_JOURNAL_PATH          submission journal file
  BIRTHMARK_SERVER_ADDR           serve listen address
  BIRTHMARK_LOGGING_LEVEL         debug, info, warn, error
  BIRTHMARK_LOGGING_FORMAT        json, text

Available commands:
  show              - Show effective configuration
  init [path]       - Write the default configuration`,
	DisableFlagsInUseLine: true,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Long:  "Show the configuration after file, environment and flag overrides.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cfg)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Println("# Birthmark Configuration")
		if configPath != "" {
			fmt.Printf("# Location: %s\n\n", configPath)
		} else {
			fmt.Printf("# Location: %s\n\n", config.DefaultPath())
		}
		fmt.Print(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultPath()
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(map[string]string{"path": path})
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
