package main

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/jpalmerr/dnsmonitor/internal/node"
	"github.com/jpalmerr/dnsmonitor/internal/poller"
	"github.com/spf13/cobra"
)

// probeCmd queries one node's status record and prints the payload.
var probeCmd = &cobra.Command{
	Use:   "probe <address>",
	Short: "Query the status record of one node",
	Long: `Send a single status query to a node and print the decoded payload.

The query is a non-recursive TXT lookup of the status record, sent straight
to the node's address. Useful to check a node before adding it to a config.

Example:
  dnsmonitor probe 192.0.2.1
  dnsmonitor probe 2001:db8::53 --name _status.example --port 5353`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().String("name", poller.DefaultStatusName, "status TXT record name")
	probeCmd.Flags().Int("port", poller.DefaultDNSPort, "DNS port of the node")
	probeCmd.Flags().Duration("timeout", 5*time.Second, "query timeout")
}

func runProbe(cmd *cobra.Command, args []string) error {
	addr, err := netip.ParseAddr(strings.TrimSpace(args[0]))
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", args[0], err)
	}

	name, _ := cmd.Flags().GetString("name")
	port, _ := cmd.Flags().GetInt("port")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	client := poller.NewClient(name, port)
	resp := client.QueryStatus(ctx, addr)
	if resp.Error != nil {
		return fmt.Errorf("probe failed: %w", resp.Error)
	}
	if len(resp.Fragments) == 0 {
		return fmt.Errorf("query %s: empty response", addr)
	}

	p, err := node.ParsePayload([]byte(strings.Join(resp.Fragments, "\n")))
	if err != nil {
		return fmt.Errorf("query %s: %w", addr, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", addr, client.Name())
	fmt.Fprintf(out, "  Latency: %s\n", resp.Latency.Round(time.Microsecond))
	if p.Queries != nil {
		fmt.Fprintf(out, "  Queries: %d\n", *p.Queries)
	}
	if p.Uptime != nil {
		fmt.Fprintf(out, "  Uptime:  %s\n", (time.Duration(*p.Uptime) * time.Second).String())
	}
	if p.QPS1m != nil {
		fmt.Fprintf(out, "  QPS 1m:  %.1f\n", *p.QPS1m)
	}
	if p.Version != "" {
		fmt.Fprintf(out, "  Version: %s\n", p.Version)
	}
	if p.ID != "" {
		fmt.Fprintf(out, "  ID:      %s\n", p.ID)
	}
	if p.Hostname != "" {
		fmt.Fprintf(out, "  Host:    %s\n", p.Hostname)
	}
	if len(p.Groups) > 0 {
		fmt.Fprintf(out, "  Groups:  %s\n", strings.Join(p.Groups, ", "))
	}

	return nil
}
