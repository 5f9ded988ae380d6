// Standalone mock DNS node for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mocknode -dns 127.0.0.1:5354 -push 127.0.0.1:8054
//
// Then in another terminal:
//
//	go run ./cmd/dnsmonitor serve -c example/config.yaml
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jpalmerr/dnsmonitor/example/mocknode"
)

func main() {
	var (
		dnsAddr  = flag.String("dns", "127.0.0.1:5354", "UDP address for the status record")
		pushAddr = flag.String("push", "127.0.0.1:8054", "HTTP address for the push channel, empty to disable")
		id       = flag.String("id", "mock1", "node id reported in the payload")
		qps      = flag.Int64("qps", 250, "simulated queries per second")
		groups   = flag.String("groups", "", "comma separated groups")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	n := mocknode.New(*id, *qps, logger)
	if *groups != "" {
		n.Groups = strings.Split(*groups, ",")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.Run(ctx, *dnsAddr, *pushAddr, ""); err != nil {
		logger.Error("mock node error", "error", err)
		os.Exit(1)
	}
}
