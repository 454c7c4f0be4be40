// Command geolift designs, runs and summarizes synthetic geo experiments.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"geolift/internal/errors"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if hint := errors.Suggestion(err); hint != "" {
			fmt.Fprintln(os.Stderr, "hint:", hint)
		}
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	envFile       string
	templatesFile string
	marketsFile   string
	logLevel      string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "geolift",
		Short:         "Causal experimentation engine for geo tests",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `geolift generates synthetic daily metrics for test and control markets,
injects a known treatment effect and estimates it back with a synthetic
control, then reports validity diagnostics and a ship decision.

Configuration is read from the environment (and .env when present):
DATABASE_URL, PORT, GIN_MODE, LOG_LEVEL, LOG_FORMAT, TEMPLATES_FILE,
MARKETS_FILE, BATCH_CONCURRENCY, DEFAULT_ALPHA, DEFAULT_POWER.`,
	}

	rootCmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "Dotenv file to load when present")
	rootCmd.PersistentFlags().StringVar(&g.templatesFile, "templates-file", "", "YAML file with a templates section (overrides TEMPLATES_FILE)")
	rootCmd.PersistentFlags().StringVar(&g.marketsFile, "markets-file", "", "YAML file with a markets section (overrides MARKETS_FILE)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: trace|debug|info|warn|error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(
		newRunCmd(g),
		newDesignCmd(g),
		newBatchCmd(g),
		newTemplatesCmd(g),
		newMarketsCmd(g),
		newServeCmd(g),
		newMigrateCmd(g),
	)
	return rootCmd
}
