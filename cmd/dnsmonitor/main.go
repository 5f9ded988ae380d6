// Package main is the entry point for the dnsmonitor CLI.
//
// dnsmonitor can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	dnsmonitor serve -c config.yaml    # Start monitoring
//	dnsmonitor validate -c config.yaml # Validate configuration
//	dnsmonitor probe 192.0.2.1         # Query one node once
//	dnsmonitor version                 # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var logLevel string

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "dnsmonitor",
	Short: "Health and QPS monitor for DNS anycast nodes",
	Long: `dnsmonitor tracks the health and query rate of a fleet of DNS nodes.

Each node publishes a JSON status payload in a TXT record and, optionally,
over a websocket push channel. dnsmonitor discovers the nodes, polls them,
derives queries per second and serves the result as JSON, Server-Sent Events
and Prometheus metrics.

Quick start:
  1. Create a config file (dnsmonitor.yaml)
  2. Run: dnsmonitor serve -c dnsmonitor.yaml
  3. Fetch http://localhost:8080/api/status

Example config:
  port: 8080
  poll_interval: 3s
  sources:
    authorities: [example.com]`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// newLogger creates a JSON logger on stderr at the --log-level level.
func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(logLevel))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", logLevel)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})), nil
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this dnsmonitor binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "dnsmonitor %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(versionCmd)
}
