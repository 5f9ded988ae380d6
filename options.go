package dnsmonitor

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/jpalmerr/dnsmonitor/internal/poller"
	"github.com/jpalmerr/dnsmonitor/internal/publish"
)

// monitorConfig holds mutable state during Monitor construction.
type monitorConfig struct {
	sources            []Source
	interval           time.Duration
	sanitizeInterval   time.Duration
	channelRetry       time.Duration
	pushChannel        bool
	evictMissing       bool
	rediscoverInterval time.Duration
	publishInterval    time.Duration
	port               int
	statusName         string
	dnsPort            int
	channelPort        int
	channelPath        string
	channelOrigin      string
	resolvers          []string
	summaryExclude     []netip.Addr
	natsURL            string
	natsSubject        string
	logger             *slog.Logger
	snapshotCallbacks  []func(Snapshot)

	deps dependencies
}

// dependencies replace the network collaborators of a Monitor. Nil fields
// select the real implementations; only tests set them.
type dependencies struct {
	querier   poller.StatusQuerier
	dialer    poller.ChannelDialer
	resolver  poller.Resolver
	publisher *publish.Publisher
	clock     poller.Clock
}

// Option is a function that configures a [Monitor] during construction.
//
// Options return an error if validation fails.
type Option func(*monitorConfig) error

// WithSource adds a discovery [Source]. Can be called multiple times. At
// least one source must be configured for [New] to succeed.
//
// Example:
//
//	src, _ := dnsmonitor.Authority("example.com")
//	m, err := dnsmonitor.New(dnsmonitor.WithSource(src))
func WithSource(s Source) Option {
	return func(cfg *monitorConfig) error {
		cfg.sources = append(cfg.sources, s)
		return nil
	}
}

// WithSources adds several sources at once.
func WithSources(sources ...Source) Option {
	return func(cfg *monitorConfig) error {
		cfg.sources = append(cfg.sources, sources...)
		return nil
	}
}

// WithInterval sets how often each node is polled. The query timeout, the
// stuck-poll window and the stale window scale with it. Defaults to 3
// seconds.
//
// Returns an error if the duration is zero or negative.
func WithInterval(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}

// WithSanitizeInterval sets how often stale nodes are swept. Defaults to 2
// seconds.
func WithSanitizeInterval(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("sanitize interval must be positive")
		}
		cfg.sanitizeInterval = d
		return nil
	}
}

// WithChannelRetry sets the minimum time between push channel attempts to
// the same node. Defaults to 90 seconds.
func WithChannelRetry(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("channel retry must be positive")
		}
		cfg.channelRetry = d
		return nil
	}
}

// WithPushChannel enables or disables websocket push channels. Enabled by
// default; when disabled every node is polled over DNS.
func WithPushChannel(enabled bool) Option {
	return func(cfg *monitorConfig) error {
		cfg.pushChannel = enabled
		return nil
	}
}

// WithPushChannelEndpoint sets the port, path and Origin header used to dial
// push channels. Zero values keep the defaults (8053, "/monitor",
// "http://dns-status.pgeodns").
func WithPushChannelEndpoint(port int, path, origin string) Option {
	return func(cfg *monitorConfig) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("channel port must be between 1 and 65535, got %d", port)
		}
		if path != "" && !strings.HasPrefix(path, "/") {
			return fmt.Errorf("channel path must start with /, got %q", path)
		}
		if port != 0 {
			cfg.channelPort = port
		}
		if path != "" {
			cfg.channelPath = path
		}
		if origin != "" {
			cfg.channelOrigin = origin
		}
		return nil
	}
}

// WithStatusRecord sets the TXT record name queried on each node and the
// port it is queried on. Zero values keep the defaults ("_status.pgeodns",
// 53).
func WithStatusRecord(name string, port int) Option {
	return func(cfg *monitorConfig) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("status port must be between 1 and 65535, got %d", port)
		}
		if name != "" {
			cfg.statusName = name
		}
		if port != 0 {
			cfg.dnsPort = port
		}
		return nil
	}
}

// WithResolvers sets the recursive servers used for discovery, as "host" or
// "host:port". Defaults to the servers in /etc/resolv.conf.
func WithResolvers(servers ...string) Option {
	return func(cfg *monitorConfig) error {
		cfg.resolvers = append(cfg.resolvers, servers...)
		return nil
	}
}

// WithSummaryExclude leaves addresses out of the summary QPS, typically
// shared anycast addresses whose traffic is already counted by the unicast
// address of each node.
//
// Returns an error if an address does not parse.
func WithSummaryExclude(addrs ...string) Option {
	return func(cfg *monitorConfig) error {
		for _, a := range addrs {
			addr, err := netip.ParseAddr(strings.TrimSpace(a))
			if err != nil {
				return fmt.Errorf("invalid summary exclude address %q: %w", a, err)
			}
			cfg.summaryExclude = append(cfg.summaryExclude, addr)
		}
		return nil
	}
}

// WithRediscoverInterval sets how often sources are resolved again.
// Defaults to 20 seconds; zero disables rediscovery after the first pass.
func WithRediscoverInterval(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d < 0 {
			return errors.New("rediscover interval cannot be negative")
		}
		cfg.rediscoverInterval = d
		return nil
	}
}

// WithEvictMissing removes nodes that a discovery pass no longer finds.
// A pass with resolution errors never evicts. Off by default: once
// discovered, a node is monitored until the monitor stops.
func WithEvictMissing(enabled bool) Option {
	return func(cfg *monitorConfig) error {
		cfg.evictMissing = enabled
		return nil
	}
}

// WithPublishInterval sets how often a snapshot is built and published to
// the HTTP API, NATS and callbacks. Defaults to 1 second.
func WithPublishInterval(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("publish interval must be positive")
		}
		cfg.publishInterval = d
		return nil
	}
}

// WithPort sets the HTTP API port. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *monitorConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithNATS publishes every snapshot as JSON to subject on the NATS server at
// url. An empty subject selects "dnsmonitor.snapshot".
func WithNATS(url, subject string) Option {
	return func(cfg *monitorConfig) error {
		if strings.TrimSpace(url) == "" {
			return errors.New("NATS url cannot be empty")
		}
		cfg.natsURL = url
		cfg.natsSubject = subject
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *monitorConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithSnapshotCallback registers a function called with every published
// [Snapshot].
//
// Callbacks run in registration order on a single goroutine and must not
// block. Panics are recovered and logged with a correlation id.
//
// Example:
//
//	m, err := dnsmonitor.New(
//	    dnsmonitor.WithSource(src),
//	    dnsmonitor.WithSnapshotCallback(func(s dnsmonitor.Snapshot) {
//	        if s.Summary.Stale > 0 {
//	            log.Printf("%d nodes stale", s.Summary.Stale)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithSnapshotCallback(cb func(Snapshot)) Option {
	return func(cfg *monitorConfig) error {
		if cb == nil {
			return nil
		}
		cfg.snapshotCallbacks = append(cfg.snapshotCallbacks, cb)
		return nil
	}
}
