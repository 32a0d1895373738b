package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/birthmark-protocol/birthmark/internal/fingerprint"
	"github.com/birthmark-protocol/birthmark/pkg/color"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

var hashAlgorithm string

// hashOutput is the --json shape of hash and check.
type hashOutput struct {
	Path string `json:"path"`
	fingerprint.Result
	Match *bool `json:"match,omitempty"`
}

var hashCmd = &cobra.Command{
	Use:   "hash <file>...",
	Short: "Compute content fingerprints",
	Long: `Compute the fingerprint of one or more files without contacting a ledger.

Files are streamed, so size is not limited by memory. The algorithm comes
from --algorithm, then fingerprint.algorithm in the config.

Supported algorithms: ` + fmt.Sprint(fingerprint.Supported()),
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		alg, err := resolveAlgorithm(hashAlgorithm, cfg)
		if err != nil {
			return err
		}

		engine := newEngine()
		var out []hashOutput
		for _, path := range args {
			res, err := engine.FingerprintFile(path, alg)
			if err != nil {
				return err
			}
			out = append(out, hashOutput{Path: path, Result: res})
			if !jsonOutput {
				fmt.Printf("%s  %s\n", color.Fingerprint(res.Digest), path)
			}
		}
		return outputJSON(out)
	},
}

var checkAlgorithm string

var checkCmd = &cobra.Command{
	Use:   "check <file> <fingerprint>",
	Short: "Check a file against an expected fingerprint",
	Long: `Recompute the fingerprint of a file and compare it to the expected value.
The comparison is exact: fingerprints are lower-case hex. Exits non-zero on
a mismatch.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		alg, err := resolveAlgorithm(checkAlgorithm, cfg)
		if err != nil {
			return err
		}

		path, expected := args[0], args[1]
		res, err := newEngine().FingerprintFile(path, alg)
		if err != nil {
			return err
		}
		match := res.Digest == expected

		if jsonOutput {
			if err := outputJSON(hashOutput{Path: path, Result: res, Match: &match}); err != nil {
				return err
			}
		} else if match {
			fmt.Printf("%s: %s\n", path, color.Success("OK"))
		}
		if !match {
			return fmt.Errorf("%s: fingerprint mismatch (%s, expected %s)", path, res.Digest, expected)
		}
		return nil
	},
}

func init() {
	hashCmd.Flags().StringVar(&hashAlgorithm, "algorithm", "", "digest algorithm (default "+string(model.DefaultAlgorithm)+")")
	checkCmd.Flags().StringVar(&checkAlgorithm, "algorithm", "", "digest algorithm (default "+string(model.DefaultAlgorithm)+")")
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(checkCmd)
}
