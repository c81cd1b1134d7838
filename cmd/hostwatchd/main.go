// hostwatchd samples hosts and virtual machines, keeps a short raw and
// 1-minute history, and raises threshold alerts.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xtxerr/hostwatch/internal/errors"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for rejected input, 1 for everything else.
func exitCode(err error) int {
	if errors.IsValidation(err) {
		return 2
	}
	return 1
}

type rootOptions struct {
	configPath string
	configSet  bool // --config given explicitly
	dbPath     string
	backend    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "hostwatchd",
		Short:         "Resource monitor for hosts and virtual machines",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.configSet = cmd.Flags().Changed("config")
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "hostwatch.yaml", "config file path")
	flags.StringVar(&opts.dbPath, "db", "", "database path (overrides config)")
	flags.StringVar(&opts.backend, "backend", "", "storage backend: duckdb, sqlite, memory (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (overrides config)")

	root.AddCommand(
		newServeCmd(opts),
		newHistoryCmd(opts),
		newAlertsCmd(opts),
		newAckCmd(opts),
		newThresholdsCmd(opts),
		newExportCmd(opts),
		newInspectCmd(),
		newConsoleCmd(opts),
	)
	return root
}
