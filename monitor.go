package dnsmonitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/dnsmonitor/internal/metrics"
	"github.com/jpalmerr/dnsmonitor/internal/poller"
	"github.com/jpalmerr/dnsmonitor/internal/publish"
	"github.com/jpalmerr/dnsmonitor/internal/server"
	"github.com/jpalmerr/dnsmonitor/internal/store"
)

const (
	defaultPort               = 8080
	defaultRediscoverInterval = 20 * time.Second
	defaultPublishInterval    = time.Second
)

// Monitor discovers DNS nodes, keeps their status fresh and publishes
// snapshots.
//
// A Monitor is created using [New] with functional options and started with
// [Monitor.Start]:
//
//	src, _ := dnsmonitor.Authority("example.com")
//	m, err := dnsmonitor.New(dnsmonitor.WithSource(src))
//	if err != nil {
//	    slog.Error("failed to create monitor", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	m.Start(ctx) // blocks until context cancelled
type Monitor struct {
	id                 string
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

// New creates a [Monitor] with the given options.
//
// At least one source must be configured via [WithSource] or [WithSources].
// Other options default to:
//   - Poll interval: 3 seconds
//   - Sanitize interval: 2 seconds
//   - Push channels: enabled, retried every 90 seconds
//   - Rediscovery: every 20 seconds
//   - HTTP port: 8080
//
// Returns an error if no sources are configured or if any option is invalid.
func New(opts ...Option) (*Monitor, error) {
	cfg := &monitorConfig{
		interval:           poller.DefaultInterval,
		sanitizeInterval:   poller.DefaultSanitizeInterval,
		channelRetry:       poller.DefaultChannelRetry,
		pushChannel:        true,
		rediscoverInterval: defaultRediscoverInterval,
		publishInterval:    defaultPublishInterval,
		port:               defaultPort,
		statusName:         poller.DefaultStatusName,
		dnsPort:            poller.DefaultDNSPort,
		channelPort:        poller.DefaultChannelPort,
		channelPath:        poller.DefaultChannelPath,
		channelOrigin:      poller.DefaultChannelOrigin,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.sources) == 0 {
		return nil, errors.New("at least one source is required")
	}

	seen := make(map[Source]bool, len(cfg.sources))
	for _, s := range cfg.sources {
		if s.name == "" {
			return nil, errors.New("source must be created with Name, Authority or NameList")
		}
		if seen[s] {
			return nil, fmt.Errorf("duplicate source: %s", s)
		}
		seen[s] = true
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.port)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()

	return &Monitor{
		id:                 id,
		sources:            cfg.sources,
		interval:           cfg.interval,
		sanitizeInterval:   cfg.sanitizeInterval,
		channelRetry:       cfg.channelRetry,
		pushChannel:        cfg.pushChannel,
		evictMissing:       cfg.evictMissing,
		rediscoverInterval: cfg.rediscoverInterval,
		publishInterval:    cfg.publishInterval,
		port:               cfg.port,
		statusName:         cfg.statusName,
		dnsPort:            cfg.dnsPort,
		channelPort:        cfg.channelPort,
		channelPath:        cfg.channelPath,
		channelOrigin:      cfg.channelOrigin,
		resolvers:          cfg.resolvers,
		summaryExclude:     cfg.summaryExclude,
		natsURL:            cfg.natsURL,
		natsSubject:        cfg.natsSubject,
		logger:             logger.With("instance", id),
		snapshotCallbacks:  cfg.snapshotCallbacks,
		deps:               cfg.deps,
	}, nil
}

// Start discovers nodes, polls them and serves the snapshot API.
//
// Start is a blocking call that runs until ctx is cancelled. During
// execution:
//
//   - All sources are resolved immediately, then every rediscover interval
//   - Every node is polled at the configured interval, or streams over its
//     push channel
//   - A snapshot is published every second to the HTTP API, NATS and
//     snapshot callbacks
//
// Returns nil on graceful shutdown. Returns an error if the resolver, the
// NATS connection or the HTTP server cannot be set up.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("dnsmonitor starting", "source_count", len(m.sources))
	m.logger.Info("polling configured",
		"interval", m.interval.String(),
		"push_channel", m.pushChannel,
		"rediscover_interval", m.rediscoverInterval.String(),
	)

	if ctx.Err() != nil {
		return nil
	}

	resolver := m.deps.resolver
	if resolver == nil {
		r, err := poller.NewDNSResolver(m.resolvers...)
		if err != nil {
			return fmt.Errorf("failed to create resolver: %w", err)
		}
		resolver = r
	}

	querier := m.deps.querier
	if querier == nil {
		querier = poller.NewClient(m.statusName, m.dnsPort)
	}

	engineCfg := poller.Config{
		Interval:         m.interval,
		SanitizeInterval: m.sanitizeInterval,
		ChannelRetry:     m.channelRetry,
		PushChannel:      m.pushChannel,
		EvictMissing:     m.evictMissing,
		SummaryExclude:   m.summaryExclude,
		Clock:            m.deps.clock,
		Logger:           m.logger,
	}

	dialer := m.deps.dialer
	if dialer == nil && m.pushChannel {
		// the handshake gets one poll interval
		dialer = poller.NewWSDialer(m.channelPort, m.channelPath, m.channelOrigin,
			m.interval, engineCfg.ReadTimeout())
	}

	publisher := m.deps.publisher
	if publisher == nil && m.natsURL != "" {
		p, err := publish.Connect(m.natsURL, m.natsSubject, "dnsmonitor-"+m.id)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		publisher = p
		m.logger.Info("publishing snapshots to NATS", "subject", p.Subject())
	}

	met := metrics.New()
	engineCfg.Metrics = met
	statusStore := store.NewMemoryStore()

	runCtx, cancel := context.WithCancel(ctx)

	engine := poller.NewEngine(engineCfg, querier, dialer, resolver)
	engine.Start(runCtx)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.discoverLoop(runCtx, engine)
	}()
	go func() {
		defer wg.Done()
		m.publishLoop(runCtx, engine, statusStore, met, publisher)
	}()

	cleanup := func() {
		cancel()
		wg.Wait()
		engine.Stop()
		if err := publisher.Close(); err != nil {
			m.logger.Warn("failed to drain NATS connection", "error", err)
		}
	}

	httpServer := server.NewServer(statusStore, m.port, met.Handler(), m.logger)
	if err := httpServer.Start(runCtx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	m.logger.Info("api available", "url", fmt.Sprintf("http://localhost:%d/api/status", m.port))

	<-ctx.Done()
	cleanup()
	m.logger.Info("dnsmonitor stopped")
	return nil
}

// discoverLoop runs a discovery pass now and then every rediscover
// interval until ctx is done.
func (m *Monitor) discoverLoop(ctx context.Context, engine *poller.Engine) {
	targets := make([]poller.Target, len(m.sources))
	for i, s := range m.sources {
		targets[i] = s.target()
	}

	m.discover(ctx, engine, targets)
	if m.rediscoverInterval <= 0 {
		return
	}

	ticker := time.NewTicker(m.rediscoverInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.discover(ctx, engine, targets)
		}
	}
}

func (m *Monitor) discover(ctx context.Context, engine *poller.Engine, targets []poller.Target) {
	err := engine.Discover(ctx, targets)
	if err == nil {
		m.logger.Debug("discovery pass complete", "sources", len(targets))
		return
	}
	if ctx.Err() != nil || errors.Is(err, poller.ErrNotRunning) {
		return
	}
	m.logger.Warn("discovery pass incomplete", "error", err)
}

// publishLoop builds and publishes a snapshot every publish interval.
func (m *Monitor) publishLoop(ctx context.Context, engine *poller.Engine, st store.Store, met *metrics.Metrics, pub *publish.Publisher) {
	ticker := time.NewTicker(m.publishInterval)
	defer ticker.Stop()

	for {
		m.publish(ctx, engine, st, met, pub)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) publish(ctx context.Context, engine *poller.Engine, st store.Store, met *metrics.Metrics, pub *publish.Publisher) {
	snap, err := engine.Snapshot(ctx)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, poller.ErrNotRunning) {
			m.logger.Warn("failed to build snapshot", "error", err)
		}
		return
	}

	// store update first, callbacks fire after the API can serve it
	st.Update(snap)
	met.ObserveSnapshot(snap)

	if pub != nil {
		if err := pub.Publish(snap); err != nil {
			m.logger.Warn("snapshot publish failed", "subject", pub.Subject(), "error", err)
		}
	}

	for _, cb := range m.snapshotCallbacks {
		invokeCallbackSafe(cb, toPublicSnapshot(snap), m.logger)
	}

	m.logger.Debug("snapshot published",
		"nodes", snap.Summary.Nodes,
		"stale", snap.Summary.Stale,
		"qps", snap.Summary.QPS,
	)
}

// Sources returns a copy of the configured sources.
func (m *Monitor) Sources() []Source {
	cp := make([]Source, len(m.sources))
	copy(cp, m.sources)
	return cp
}

// ID returns the random identifier of this monitor instance. It tags every
// log line and names the NATS connection.
func (m *Monitor) ID() string {
	return m.id
}

// Port returns the configured HTTP API port.
func (m *Monitor) Port() int {
	return m.port
}

// Interval returns the per-node poll interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// invokeCallbackSafe calls a snapshot callback with panic recovery. The
// stack is logged with a correlation id; the panic does not propagate.
func invokeCallbackSafe(cb func(Snapshot), snap Snapshot, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("snapshot callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(snap)
}
