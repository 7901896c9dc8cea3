package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	basePath string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "gossip_node",
	Short: "Cluster node for a line-based JSON test harness",
	Long: `A single cluster node that speaks newline-delimited JSON on stdin/stdout.
The harness starts one process per node; diagnostics go to stderr.

Without a subcommand the broadcast workload runs.`,
	SilenceUsage: true,
	RunE:         runBroadcast,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&basePath, "prefix", "", "Config file base path (reads <prefix>/config/gossip_node.yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log_level from the config file")
}
