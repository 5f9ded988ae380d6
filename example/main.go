package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/dnsmonitor"
	"github.com/jpalmerr/dnsmonitor/example/mocknode"
)

const (
	mockDNSPort  = 5354
	mockPushPort = 8054
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// two mock nodes on loopback addresses sharing the same ports
	for i, addr := range []string{"127.0.0.1", "127.0.0.2"} {
		n := mocknode.New(fmt.Sprintf("mock%d", i+1), int64(100*(i+1)), slog.Default())
		go func() {
			err := n.Run(ctx, fmt.Sprintf("%s:%d", addr, mockDNSPort), fmt.Sprintf("%s:%d", addr, mockPushPort), "")
			if err != nil {
				slog.Error("mock node error", "address", addr, "error", err)
			}
		}()
	}
	time.Sleep(100 * time.Millisecond)

	// grid API: one template, two hosts
	sources, err := dnsmonitor.NameGrid("127.0.0.{{.n}}", map[string][]string{
		"n": {"1", "2"},
	})
	if err != nil {
		slog.Error("failed to create name grid", "error", err)
		os.Exit(1)
	}

	m, err := dnsmonitor.New(
		dnsmonitor.WithSources(sources...),
		dnsmonitor.WithInterval(2*time.Second),
		dnsmonitor.WithStatusRecord("", mockDNSPort),
		dnsmonitor.WithPushChannelEndpoint(mockPushPort, "", ""),
		dnsmonitor.WithPort(8080),
		dnsmonitor.WithSnapshotCallback(func(s dnsmonitor.Snapshot) {
			fmt.Printf("%s  %d nodes  %d qps  %d stale\n",
				s.GeneratedAt.Format(time.TimeOnly), s.Summary.Nodes, s.Summary.QPS, s.Summary.Stale)
		}),
	)
	if err != nil {
		slog.Error("failed to create monitor", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  dnsmonitor demo")
	fmt.Println()
	fmt.Println("  Nodes:     2 mock nodes on 127.0.0.1 and 127.0.0.2")
	fmt.Println("  Status:    curl http://localhost:8080/api/status")
	fmt.Println("  Stream:    curl -N http://localhost:8080/api/sse")
	fmt.Println("  Metrics:   curl http://localhost:8080/metrics")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	if err := m.Start(ctx); err != nil {
		slog.Error("dnsmonitor error", "error", err)
		os.Exit(1)
	}
}
