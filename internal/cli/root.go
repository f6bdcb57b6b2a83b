// Package cli implements the reharvest command-line interface using
// Cobra: package-level *cobra.Command vars wired together in init().
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "reharvest",
	Short: "Adaptive web-page re-harvester",
	Long: `reharvest repeatedly re-captures a list of URLs, adapting each
URL's fetch delay from observed content similarity so that captures stay
close to a target similarity instead of fetching on a fixed schedule.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
}

// Execute runs the CLI and exits with status 1 on error, following the
// teacher's main()-delegates-to-cli.Execute() convention.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
