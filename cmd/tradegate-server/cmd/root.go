// Package cmd provides CLI commands for tradegate-server.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information (set at build time via ldflags)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var cfgFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tradegate-server",
	Short: "tradegate - lease-based failover and policy gate for trading signals",
	Long: `tradegate runs on a local host and on a cloud standby.

Both hosts heartbeat a shared lease; exactly one of them is active at a time.
The active host accepts trading signals that pass the policy gate and obeys
owner commands. The standby takes over when the local host stops renewing
the lease, and is paused again when the local host returns.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Path to config file (default ./tradegate.yaml or /etc/tradegate/tradegate.yaml)")
}

// versionString returns formatted version information
func versionString() string {
	return fmt.Sprintf("tradegate %s (commit: %s, built: %s)",
		Version, Commit, BuildDate)
}
