package poller

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpalmerr/dnsmonitor/internal/metrics"
	"github.com/jpalmerr/dnsmonitor/internal/node"
	"github.com/jpalmerr/dnsmonitor/internal/store"
)

// ErrNotRunning is returned by calls that need the event loop while the
// engine is not started or already stopped.
var ErrNotRunning = errors.New("engine is not running")

// Engine defaults.
const (
	DefaultInterval         = 3 * time.Second
	DefaultSanitizeInterval = 2 * time.Second
	DefaultChannelRetry     = 90 * time.Second
)

const eventBuffer = 256

// Node status texts set by the engine.
const (
	StatusWaiting       = "waiting"
	StatusRetrying      = "retrying"
	StatusTimeout       = "timeout"
	StatusEmptyResponse = "empty response"
)

// Config controls engine timing and behavior. Zero durations select the
// defaults.
type Config struct {
	// Interval is the per-node poll period. The query timeout, the
	// stuck-poll window and the stale window derive from it.
	Interval time.Duration

	SanitizeInterval time.Duration

	// ChannelRetry is the minimum time between push channel attempts.
	ChannelRetry time.Duration

	// PushChannel enables push channel upgrades.
	PushChannel bool

	// EvictMissing removes nodes not sighted by a clean discovery pass.
	EvictMissing bool

	// SummaryExclude lists addresses left out of the summary rate.
	SummaryExclude []netip.Addr

	Clock   Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.SanitizeInterval <= 0 {
		c.SanitizeInterval = DefaultSanitizeInterval
	}
	if c.ChannelRetry <= 0 {
		c.ChannelRetry = DefaultChannelRetry
	}
	if c.Clock == nil {
		c.Clock = RealClock{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// QueryTimeout is how long a status query may run. A query past it ends
// with "timeout" and the next tick asks again.
func (c Config) QueryTimeout() time.Duration {
	return c.Interval * 18 / 10
}

// StuckWindow is how long after the last update an outstanding query is
// considered lost, for queriers that overrun their deadline.
func (c Config) StuckWindow() time.Duration {
	return c.Interval * 6
}

// StaleWindow is how long a node may go without an update before the
// sanitizer resets it.
func (c Config) StaleWindow() time.Duration {
	return c.Interval * 7 / 2
}

// ReadTimeout is the push channel per-message deadline.
func (c Config) ReadTimeout() time.Duration {
	return c.StaleWindow()
}

// Engine tracks every discovered node and keeps its status fresh.
//
// All registry mutation happens on the loop goroutine started by
// [Engine.Start]. Lifecycle methods are safe for concurrent use.
type Engine struct {
	cfg      Config
	querier  StatusQuerier
	dialer   ChannelDialer
	resolver Resolver
	logger   *slog.Logger
	metrics  *metrics.Metrics
	clock    Clock
	exclude  map[netip.Addr]struct{}

	events chan event
	done   chan struct{}

	// owned by the loop goroutine
	registry *node.Registry
	tickers  map[netip.Addr]context.CancelFunc
	polls    map[netip.Addr]uint64
	chans    map[netip.Addr]*channelHandle
	lastSeen map[netip.Addr]uint64
	pollSeq  uint64
	chanGen  uint64
	bootTime time.Time
	loopCtx  context.Context

	pass atomic.Uint64

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
	stopped  bool
	doneOnce sync.Once
}

// NewEngine creates an [Engine]. dialer may be nil when push channels are
// disabled; resolver may be nil when only address literals are registered.
//
// The engine must be started with [Engine.Start] and stopped with
// [Engine.Stop].
func NewEngine(cfg Config, querier StatusQuerier, dialer ChannelDialer, resolver Resolver) *Engine {
	cfg = cfg.withDefaults()

	exclude := make(map[netip.Addr]struct{}, len(cfg.SummaryExclude))
	for _, a := range cfg.SummaryExclude {
		exclude[a.Unmap()] = struct{}{}
	}

	return &Engine{
		cfg:      cfg,
		querier:  querier,
		dialer:   dialer,
		resolver: resolver,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		clock:    cfg.Clock,
		exclude:  exclude,
		events:   make(chan event, eventBuffer),
		done:     make(chan struct{}),
		registry: node.NewRegistry(),
		tickers:  make(map[netip.Addr]context.CancelFunc),
		polls:    make(map[netip.Addr]uint64),
		chans:    make(map[netip.Addr]*channelHandle),
		lastSeen: make(map[netip.Addr]uint64),
		bootTime: cfg.Clock.Now(),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Start launches the event loop and the sanitizer in background goroutines.
//
// Start is non-blocking. If ctx is nil, context.Background() is used as the
// parent context. Start is idempotent; if Stop was called before Start,
// Start is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.bootTime = e.clock.Now()
	e.loopCtx = loopCtx
	e.wg.Add(2)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		e.run(loopCtx)
	}()
	go func() {
		defer e.wg.Done()
		e.runSanitizer(loopCtx)
	}()
}

// Stop halts the engine and waits for all goroutines to complete. Open push
// channels are closed.
//
// Stop is idempotent and safe to call before Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.stopped {
		e.stopped = true
		if e.cancel != nil {
			e.cancel()
		}
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.doneOnce.Do(func() { close(e.done) })
}

// running reports whether the loop accepts events.
func (e *Engine) running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started && !e.stopped
}

// run is the event loop. It owns the registry until ctx is done.
func (e *Engine) run(ctx context.Context) {
	defer e.doneOnce.Do(func() { close(e.done) })
	defer e.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.events:
			e.handle(ev)
		}
	}
}

// shutdown releases per-node resources when the loop exits.
func (e *Engine) shutdown() {
	for addr, cancel := range e.tickers {
		cancel()
		delete(e.tickers, addr)
	}
	for addr := range e.chans {
		e.closeChannel(addr)
	}
}

// handle dispatches one event. Handlers never block.
func (e *Engine) handle(ev event) {
	switch ev := ev.(type) {
	case tickEvent:
		e.onTick(ev.addr)
	case sanitizeEvent:
		e.sanitize()
	case queryResultEvent:
		e.onQueryResult(ev)
	case channelDialedEvent:
		e.onChannelDialed(ev)
	case channelMessageEvent:
		e.onChannelMessage(ev)
	case channelClosedEvent:
		e.onChannelClosed(ev)
	case discoveredEvent:
		e.onDiscovered(ev)
	case pruneEvent:
		e.prune(ev.pass)
	case snapshotEvent:
		ev.reply <- BuildSnapshot(e.registry, e.clock.Now(), e.cfg.StaleWindow(), e.exclude)
	}
}

// post hands ev to the loop from a worker goroutine. It fails once the loop
// context is done.
func (e *Engine) post(ev event) error {
	select {
	case e.events <- ev:
		return nil
	case <-e.loopCtx.Done():
		return ErrNotRunning
	}
}

// submit hands ev to the loop on behalf of a caller outside the engine.
func (e *Engine) submit(ctx context.Context, ev event) error {
	if !e.running() {
		return ErrNotRunning
	}
	select {
	case e.events <- ev:
		return nil
	case <-e.done:
		return ErrNotRunning
	case <-e.loopCtx.Done():
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawn runs fn on a tracked worker goroutine.
func (e *Engine) spawn(fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.loopCtx)
	}()
}

// Snapshot returns the aggregate view of all nodes.
func (e *Engine) Snapshot(ctx context.Context) (store.Snapshot, error) {
	reply := make(chan store.Snapshot, 1)
	if err := e.submit(ctx, snapshotEvent{reply: reply}); err != nil {
		return store.Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-e.done:
		return store.Snapshot{}, ErrNotRunning
	case <-ctx.Done():
		return store.Snapshot{}, ctx.Err()
	}
}

type event interface{}

type tickEvent struct {
	addr netip.Addr
}

type sanitizeEvent struct{}

type queryResultEvent struct {
	addr netip.Addr
	seq  uint64
	resp Response
}

type channelDialedEvent struct {
	addr netip.Addr
	gen  uint64
	ch   Channel
	err  error
}

type channelMessageEvent struct {
	addr netip.Addr
	gen  uint64
	data []byte
}

type channelClosedEvent struct {
	addr netip.Addr
	gen  uint64
	err  error
}

type discoveredEvent struct {
	addr netip.Addr
	name string
	pass uint64
}

type pruneEvent struct {
	pass uint64
}

type snapshotEvent struct {
	reply chan store.Snapshot
}
