package poller

import (
	"context"
	"time"

	"github.com/jpalmerr/dnsmonitor/internal/node"
)

// runSanitizer posts a sweep every SanitizeInterval until ctx is done.
func (e *Engine) runSanitizer(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SanitizeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case e.events <- sanitizeEvent{}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// sanitize resets the rate data of every stale node and closes its push
// channel. Records are never removed and InFlight is left alone.
func (e *Engine) sanitize() {
	now := e.clock.Now()
	window := e.cfg.StaleWindow()

	e.registry.Each(func(rec *node.Record) {
		if !rec.IsStale(now, window) {
			return
		}
		if !rec.QPS.Known || rec.QPS.Value != 0 || rec.QueryCounter != 0 {
			e.metrics.Sanitized()
		}
		rec.ResetRate()

		if rec.Channel == node.ChannelOpen {
			e.closeChannel(rec.Address)
			rec.Channel = node.ChannelClosed
			e.logger.Debug("closed stale push channel", "address", rec.Address)
		}
	})
}
