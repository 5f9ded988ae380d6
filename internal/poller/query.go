package poller

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/jpalmerr/dnsmonitor/internal/metrics"
	"github.com/jpalmerr/dnsmonitor/internal/node"
)

// poll issues a status query unless one is already outstanding. Queries
// end at the query timeout; one still outstanding past the stuck window is
// abandoned so the next tick can start a fresh one.
func (e *Engine) poll(rec *node.Record, now time.Time) {
	if rec.InFlight {
		base := rec.LastUpdate
		if base.IsZero() {
			base = e.bootTime
		}
		if now.After(base.Add(e.cfg.StuckWindow())) {
			e.logger.Warn("clearing stuck poll", "address", rec.Address)
			rec.InFlight = false
			rec.Status = StatusRetrying
			delete(e.polls, rec.Address)
			e.metrics.PollCompleted(metrics.OutcomeStuck)
			return
		}
		rec.Status = StatusWaiting
		return
	}

	e.pollSeq++
	seq := e.pollSeq
	e.polls[rec.Address] = seq
	rec.InFlight = true
	rec.PollStartedAt = now

	addr := rec.Address
	timeout := e.cfg.QueryTimeout()

	e.spawn(func(ctx context.Context) {
		qctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		resp := e.querier.QueryStatus(qctx, addr)
		_ = e.post(queryResultEvent{addr: addr, seq: seq, resp: resp})
	})
}

// onQueryResult applies a finished query. Payloads are applied even when
// the query was superseded; only the current query's bookkeeping is
// touched.
func (e *Engine) onQueryResult(ev queryResultEvent) {
	rec, ok := e.registry.Get(ev.addr)
	if !ok {
		return
	}
	now := e.clock.Now()
	received := false

	switch {
	case ev.resp.Error != nil:
		if isTimeout(ev.resp.Error) {
			rec.Status = StatusTimeout
			e.metrics.PollCompleted(metrics.OutcomeTimeout)
		} else {
			rec.Status = ev.resp.Error.Error()
			e.metrics.PollCompleted(metrics.OutcomeError)
		}
		e.logger.Debug("status query failed", "address", ev.addr, "error", ev.resp.Error)

	case len(ev.resp.Fragments) == 0:
		rec.Status = StatusEmptyResponse
		e.metrics.PollCompleted(metrics.OutcomeEmpty)

	default:
		received = true
		raw := strings.Join(ev.resp.Fragments, "\n")
		if err := rec.Process([]byte(raw), now); err != nil {
			e.logger.Warn("bad status payload", "address", ev.addr, "error", err)
			e.metrics.PayloadReceived(string(node.TransportDNS), false)
			e.metrics.PollCompleted(metrics.OutcomeParseError)
		} else {
			rec.Transport = node.TransportDNS
			e.metrics.PayloadReceived(string(node.TransportDNS), true)
			e.metrics.PollCompleted(metrics.OutcomeOK)
		}
	}

	if e.polls[ev.addr] != ev.seq {
		return
	}
	delete(e.polls, ev.addr)

	if received && !rec.PollStartedAt.IsZero() {
		rtt := now.Sub(rec.PollStartedAt)
		rec.ResponseTime = node.LatencyOf(rtt)
		e.metrics.ObserveResponseTime(rtt)
	} else {
		rec.ResponseTime = node.Latency{}
	}
	rec.InFlight = false
	rec.PollStartedAt = time.Time{}
}

// isTimeout reports whether err is a deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
