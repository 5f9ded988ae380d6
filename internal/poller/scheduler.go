package poller

import (
	"context"
	"net/netip"
	"time"

	"github.com/jpalmerr/dnsmonitor/internal/node"
)

// startTicker begins the periodic trigger for addr. The first tick is run by
// the caller; the goroutine only posts the following ones.
func (e *Engine) startTicker(addr netip.Addr) {
	if cancel, ok := e.tickers[addr]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(e.loopCtx)
	e.tickers[addr] = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ticker := time.NewTicker(e.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case e.events <- tickEvent{addr: addr}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// stopTicker ends the periodic trigger for addr.
func (e *Engine) stopTicker(addr netip.Addr) {
	if cancel, ok := e.tickers[addr]; ok {
		cancel()
		delete(e.tickers, addr)
	}
}

// onTick decides what a node's periodic trigger does: nothing while its push
// channel is open, a channel upgrade when one is due, otherwise a status
// query.
func (e *Engine) onTick(addr netip.Addr) {
	rec, ok := e.registry.Get(addr)
	if !ok {
		return
	}
	if rec.Channel == node.ChannelOpen {
		return
	}

	now := e.clock.Now()
	if e.channelDue(rec, now) {
		e.openChannel(rec, now)
		return
	}
	e.poll(rec, now)
}

// channelDue reports whether a push channel upgrade should be attempted.
func (e *Engine) channelDue(rec *node.Record, now time.Time) bool {
	if !e.cfg.PushChannel || e.dialer == nil {
		return false
	}
	if rec.Channel == node.ChannelOpen {
		return false
	}
	return rec.LastChannelAttempt.IsZero() || now.Sub(rec.LastChannelAttempt) >= e.cfg.ChannelRetry
}
