// Package main is the entry point for the keepalive CLI.
//
// keepalive can be used as a library (SDK) or as a standalone binary with
// YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	keepalive run -c config.yaml      # Keep every token's session alive
//	keepalive validate -c config.yaml # Validate configuration
//	keepalive version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "keepalive",
	Short: "Keep authenticated sessions alive with periodic pings",
	Long: `keepalive authenticates every token in a token file and keeps its
session alive by pinging the service on a fixed interval.

Quick start:
  1. Put one token per line in np_tokens.txt
  2. Create a config file (keepalive.yaml)
  3. Run: keepalive run -c keepalive.yaml

Example config:
  session_url: https://api.example.com/api/auth/session
  ping_urls:
    - https://nw.example.com/api/network/ping
  ping_interval: 60s`,
	SilenceUsage: true,
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this keepalive binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "keepalive %s\n", version)
		_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
		_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-format", logFormatAuto, "log format: json, text or auto")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")

	rootCmd.AddCommand(versionCmd)
}
