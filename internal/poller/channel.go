package poller

import (
	"context"
	"errors"
	"io"
	"net/netip"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/dnsmonitor/internal/node"
)

// channelHandle tracks one push channel attempt. ch is nil until the dial
// completes.
type channelHandle struct {
	gen uint64
	ch  Channel
}

// openChannel starts a push channel attempt. The record is marked open
// right away so the scheduler stops polling while the dial is pending.
func (e *Engine) openChannel(rec *node.Record, now time.Time) {
	e.chanGen++
	gen := e.chanGen
	addr := rec.Address

	e.chans[addr] = &channelHandle{gen: gen}
	rec.LastChannelAttempt = now
	rec.Channel = node.ChannelOpen

	e.logger.Debug("opening push channel", "address", addr)

	e.spawn(func(ctx context.Context) {
		ch, err := e.dialer.DialChannel(ctx, addr)
		if e.post(channelDialedEvent{addr: addr, gen: gen, ch: ch, err: err}) != nil && ch != nil {
			_ = ch.Close()
		}
	})
}

// onChannelDialed records the outcome of a dial. A dial that finishes after
// its attempt was torn down is closed.
func (e *Engine) onChannelDialed(ev channelDialedEvent) {
	h, ok := e.chans[ev.addr]
	if !ok || h.gen != ev.gen {
		if ev.ch != nil {
			_ = ev.ch.Close()
		}
		return
	}

	rec, ok := e.registry.Get(ev.addr)
	if !ok {
		delete(e.chans, ev.addr)
		if ev.ch != nil {
			_ = ev.ch.Close()
		}
		return
	}

	if ev.err != nil {
		delete(e.chans, ev.addr)
		rec.Channel = node.ChannelClosed
		rec.Status = ev.err.Error()
		e.metrics.ChannelAttempt(false)
		e.logger.Debug("push channel unavailable", "address", ev.addr, "error", ev.err)
		return
	}

	h.ch = ev.ch
	e.metrics.ChannelAttempt(true)
	e.logger.Info("push channel open", "address", ev.addr)

	addr, gen, ch := ev.addr, ev.gen, ev.ch
	e.spawn(func(ctx context.Context) {
		for {
			data, err := ch.ReadMessage()
			if err != nil {
				_ = e.post(channelClosedEvent{addr: addr, gen: gen, err: err})
				return
			}
			if e.post(channelMessageEvent{addr: addr, gen: gen, data: data}) != nil {
				return
			}
		}
	})
}

// onChannelMessage applies one pushed payload.
func (e *Engine) onChannelMessage(ev channelMessageEvent) {
	h, ok := e.chans[ev.addr]
	if !ok || h.gen != ev.gen {
		return
	}
	rec, ok := e.registry.Get(ev.addr)
	if !ok {
		return
	}

	rec.ResponseTime = node.Latency{}
	if err := rec.Process(ev.data, e.clock.Now()); err != nil {
		e.logger.Warn("bad pushed payload", "address", ev.addr, "error", err)
		e.metrics.PayloadReceived(string(node.TransportWS), false)
		return
	}
	rec.Transport = node.TransportWS
	e.metrics.PayloadReceived(string(node.TransportWS), true)
}

// onChannelClosed handles a channel that ended on its own.
func (e *Engine) onChannelClosed(ev channelClosedEvent) {
	h, ok := e.chans[ev.addr]
	if !ok || h.gen != ev.gen {
		return
	}
	delete(e.chans, ev.addr)
	_ = h.ch.Close()

	rec, ok := e.registry.Get(ev.addr)
	if ok {
		rec.Channel = node.ChannelClosed
	}
	if closedNormally(ev.err) {
		e.logger.Info("push channel closed", "address", ev.addr)
		return
	}
	if ok {
		rec.Status = ev.err.Error()
	}
	e.logger.Warn("push channel failed", "address", ev.addr, "error", ev.err)
}

// closedNormally reports whether err marks an orderly end of a channel.
func closedNormally(err error) bool {
	return err == nil || errors.Is(err, io.EOF) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// closeChannel tears down the channel or pending attempt for addr.
func (e *Engine) closeChannel(addr netip.Addr) {
	h, ok := e.chans[addr]
	if !ok {
		return
	}
	delete(e.chans, addr)
	if h.ch != nil {
		_ = h.ch.Close()
	}
}
