// Package dnsmonitor tracks the health and query rate of a fleet of DNS
// anycast nodes.
//
// Every node exposes a small JSON status payload (a cumulative query
// counter, its uptime and version) in a TXT record, and optionally streams
// the same payload over a websocket push channel. A [Monitor] discovers the
// nodes, keeps one poll in flight per node, derives queries per second from
// counter deltas, resets nodes that stop reporting and publishes an
// aggregate snapshot every second.
//
// # Quick Start
//
//	src, _ := dnsmonitor.Authority("example.com")
//	m, _ := dnsmonitor.New(dnsmonitor.WithSource(src))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	m.Start(ctx) // blocks until context is cancelled
//
// # Sources
//
// Nodes are found from one or more sources, resolved again every 20 seconds:
//
//   - [Authority]: every nameserver in the NS records of a domain
//   - [NameList]: every label listed in a TXT record, qualified with a base domain
//   - [Name]: the A records of one host, or an address literal
//
// # Configuration
//
//	m, err := dnsmonitor.New(
//	    dnsmonitor.WithSources(auth, list),
//	    dnsmonitor.WithInterval(5 * time.Second),
//	    dnsmonitor.WithSummaryExclude("192.0.2.53"),
//	    dnsmonitor.WithNATS("nats://127.0.0.1:4222", ""),
//	    dnsmonitor.WithSnapshotCallback(func(s dnsmonitor.Snapshot) { ... }),
//	)
//
// The poll interval drives every other timing: a query times out after 1.8
// intervals and is retried on the next tick, an overrunning query is
// abandoned after 6, and a node without an update for 3.5 intervals has its
// rate reset.
//
// # Architecture
//
//   - internal/node: per-node record, payload parsing, rate computation
//   - internal/poller: the engine; one event loop owning all node state,
//     DNS and websocket transports, discovery
//   - internal/store: latest snapshot with pub/sub for streaming
//   - internal/server: HTTP API with Server-Sent Events and /metrics
//   - internal/metrics: Prometheus collectors
//   - internal/publish: NATS snapshot publisher
//
// The internal packages are not part of the public API and may change
// without notice.
package dnsmonitor
