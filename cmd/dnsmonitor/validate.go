package main

import (
	"fmt"

	"github.com/jpalmerr/dnsmonitor/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a dnsmonitor configuration file without starting the server.

This command parses the YAML, expands environment variables, validates all
fields and builds every source, including grid hosts. No DNS queries are
made. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  dnsmonitor validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sources, err := config.BuildSources(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	gridHosts := 0
	for _, g := range cfg.Sources.Grids {
		size := 1
		for _, vals := range g.Dimensions {
			size *= len(vals)
		}
		gridHosts += size
	}

	push := "enabled"
	if !cfg.PushChannel.IsEnabled() {
		push = "disabled"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Push channels: %s\n", push)
	fmt.Fprintf(out, "  Sources:       %d authorities, %d name lists, %d names, %d from grids = %d total\n",
		len(cfg.Sources.Authorities), len(cfg.Sources.NameLists), len(cfg.Sources.Names), gridHosts, len(sources))
	if cfg.NATS.URL != "" {
		fmt.Fprintf(out, "  NATS:          %s\n", cfg.NATS.URL)
	}

	return nil
}
