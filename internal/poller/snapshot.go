package poller

import (
	"net/netip"
	"time"

	"github.com/jpalmerr/dnsmonitor/internal/node"
	"github.com/jpalmerr/dnsmonitor/internal/store"
)

// BuildSnapshot renders the registry at now. The summary rate adds up the
// known rates of every node not in exclude; unknown rates count as zero.
// Nodes without an update inside staleWindow are counted as stale.
func BuildSnapshot(reg *node.Registry, now time.Time, staleWindow time.Duration, exclude map[netip.Addr]struct{}) store.Snapshot {
	snap := store.Snapshot{
		Servers:     make(map[string]store.ServerStatus, reg.Len()),
		GeneratedAt: now,
	}

	reg.Each(func(rec *node.Record) {
		snap.Servers[rec.Address.String()] = serverStatus(rec, now)

		if _, skip := exclude[rec.Address]; !skip {
			snap.Summary.QPS += rec.QPS.OrZero()
		}
		if rec.IsStale(now, staleWindow) {
			snap.Summary.Stale++
		}
	})
	snap.Summary.Nodes = reg.Len()

	return snap
}

// serverStatus converts a record to its display view.
func serverStatus(rec *node.Record, now time.Time) store.ServerStatus {
	s := store.ServerStatus{
		Name:         rec.DisplayName,
		Names:        append([]string{}, rec.Names...),
		IP:           rec.Address.String(),
		ReportedName: rec.ReportedName,
		Version:      rec.Version,
		Queries:      rec.QueryCounter,
		QPS1m:        rec.QPS1m,
		Status:       rec.Status,
		LastUpdate:   node.FormatAge(rec.LastUpdate, now),
		Transport:    string(rec.Transport),
		Channel:      rec.Channel.String(),
	}
	if s.Name == "" {
		s.Name = s.IP
	}
	if len(rec.Groups) > 0 {
		s.Groups = append([]string(nil), rec.Groups...)
	}
	if rec.QPS.Known {
		qps := rec.QPS.Value
		s.QPS = &qps
	}
	if !rec.LastUpdate.IsZero() {
		t := rec.LastUpdate
		s.LastUpdateAt = &t
	}
	if rec.HasUptime {
		s.Uptime = rec.UptimeSeconds
		s.UptimeText = node.FormatDuration(now.Sub(rec.Started))
	}
	if rec.ResponseTime.Valid {
		s.ResponseTime = store.Millis{Value: rec.ResponseTime.Milliseconds(), Valid: true}
	}
	return s
}
