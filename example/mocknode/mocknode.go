// Package mocknode runs a fake DNS node for demos and manual testing.
//
// A Node answers its TXT status record over UDP and streams the same
// payload over a websocket push channel, with a query counter that grows at
// roughly the configured rate.
package mocknode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/miekg/dns"

	"github.com/jpalmerr/dnsmonitor/internal/node"
	"github.com/jpalmerr/dnsmonitor/internal/poller"
)

// DefaultPushInterval is how often a connected push channel gets a payload.
const DefaultPushInterval = time.Second

// Node is a simulated DNS node.
type Node struct {
	ID           string
	Version      string
	Groups       []string
	QPS          int64
	PushInterval time.Duration
	StatusName   string
	Logger       *slog.Logger

	mu      sync.Mutex
	started time.Time
	last    time.Time
	queries int64
}

// New creates a Node reporting as id with a base rate of qps.
func New(id string, qps int64, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now()
	return &Node{
		ID:           id,
		Version:      "mock-1.0",
		QPS:          qps,
		PushInterval: DefaultPushInterval,
		StatusName:   poller.DefaultStatusName,
		Logger:       logger,
		started:      now,
		last:         now,
		queries:      rand.Int63n(1_000_000),
	}
}

// Payload advances the counter to now and returns the status JSON.
func (n *Node) Payload() []byte {
	n.mu.Lock()
	now := time.Now()
	elapsed := now.Sub(n.last).Seconds()
	if n.QPS > 0 && elapsed > 0 {
		// +-10% jitter
		rate := float64(n.QPS) * (0.9 + 0.2*rand.Float64())
		n.queries += int64(rate * elapsed)
	}
	n.last = now
	queries := n.queries
	uptime := now.Sub(n.started).Truncate(time.Second).Seconds()
	n.mu.Unlock()

	data, _ := json.Marshal(node.Payload{
		Queries: &queries,
		Uptime:  &uptime,
		Version: n.Version,
		ID:      n.ID,
		Groups:  n.Groups,
	})
	return data
}

// ServeDNS answers TXT queries for the status record and refuses the rest.
func (n *Node) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	if len(r.Question) != 1 {
		m.SetRcode(r, dns.RcodeFormatError)
		_ = w.WriteMsg(m)
		return
	}

	q := r.Question[0]
	if q.Qtype != dns.TypeTXT || !strings.EqualFold(q.Name, dns.Fqdn(n.StatusName)) {
		m.SetRcode(r, dns.RcodeRefused)
		_ = w.WriteMsg(m)
		return
	}

	m.SetReply(r)
	m.Authoritative = true
	m.Answer = append(m.Answer, &dns.TXT{
		Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeTXT, Class: dns.ClassINET},
		Txt: []string{string(n.Payload())},
	})
	if err := w.WriteMsg(m); err != nil {
		n.Logger.Debug("failed to write dns response", "error", err)
	}
}

var upgrader = websocket.Upgrader{
	// the monitor sends its own Origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades to a websocket and pushes a payload immediately, then
// every PushInterval until the peer goes away.
func (n *Node) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.Logger.Warn("push channel upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	n.Logger.Info("push channel opened", "remote", r.RemoteAddr, "origin", r.Header.Get("Origin"))

	// reader detects the peer closing
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := n.PushInterval
	if interval <= 0 {
		interval = DefaultPushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := conn.WriteMessage(websocket.TextMessage, n.Payload()); err != nil {
			n.Logger.Info("push channel closed", "remote", r.RemoteAddr, "error", err)
			return
		}
		select {
		case <-done:
			n.Logger.Info("push channel closed", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// Run serves the status record on dnsAddr (UDP) and the push channel on
// httpAddr at path until ctx is cancelled. An empty httpAddr disables the
// push channel.
func (n *Node) Run(ctx context.Context, dnsAddr, httpAddr, path string) error {
	pc, err := net.ListenPacket("udp", dnsAddr)
	if err != nil {
		return fmt.Errorf("failed to bind dns %s: %w", dnsAddr, err)
	}
	dnsServer := &dns.Server{PacketConn: pc, Handler: n}

	var httpServer *http.Server
	if httpAddr != "" {
		if path == "" {
			path = poller.DefaultChannelPath
		}
		mux := http.NewServeMux()
		mux.Handle("GET "+path, n)
		httpServer = &http.Server{
			Addr:              httpAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	errChan := make(chan error, 2)
	go func() { errChan <- dnsServer.ActivateAndServe() }()
	if httpServer != nil {
		go func() {
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	n.Logger.Info("mock node running", "id", n.ID, "dns", pc.LocalAddr().String(), "push", httpAddr)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errChan:
	}

	_ = dnsServer.Shutdown()
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}
	return runErr
}
