package dnsmonitor

import (
	"net/netip"
	"sort"
	"time"

	"github.com/jpalmerr/dnsmonitor/internal/store"
)

// Transport values reported in [NodeStatus.Transport].
const (
	TransportDNS       = "dns"
	TransportWebSocket = "ws"
)

// NodeStatus is the state of one monitored node at snapshot time.
type NodeStatus struct {
	// Address is the node's IP address.
	Address netip.Addr

	// Name is the display name, the longest short label among Names, or the
	// address when no hostname is known.
	Name string

	// Names lists every hostname discovered for the address.
	Names []string

	// ReportedName is the identifier the node reports about itself.
	ReportedName string

	Groups  []string
	Version string

	// Queries is the node's last cumulative query counter.
	Queries int64

	// QPS is the derived query rate. Valid only when QPSKnown.
	QPS      int64
	QPSKnown bool

	// QPS1m is the one-minute rate reported by the node itself.
	QPS1m float64

	// Status is empty while healthy, otherwise a short text such as
	// "timeout" or a parse error.
	Status string

	Uptime time.Duration

	// LastUpdate is zero if the node never reported.
	LastUpdate time.Time

	// ResponseTime is the latency of the last poll. Valid only when
	// ResponseTimeKnown.
	ResponseTime      time.Duration
	ResponseTimeKnown bool

	// Transport is [TransportDNS] or [TransportWebSocket] once a payload has
	// arrived.
	Transport string

	// ChannelOpen reports whether a push channel is open.
	ChannelOpen bool
}

// Summary aggregates all nodes of a [Snapshot].
type Summary struct {
	// QPS is the sum of known node rates, except excluded addresses.
	QPS int64

	Nodes int

	// Stale counts nodes without a recent update.
	Stale int
}

// Snapshot is a point-in-time view of every monitored node.
//
// Snapshot values handed to callbacks are copies; callbacks may keep or
// modify them freely.
type Snapshot struct {
	// Nodes is ordered by address.
	Nodes []NodeStatus

	Summary     Summary
	GeneratedAt time.Time
}

// Node returns the status of addr, if monitored.
func (s Snapshot) Node(addr netip.Addr) (NodeStatus, bool) {
	addr = addr.Unmap()
	i := sort.Search(len(s.Nodes), func(i int) bool {
		return s.Nodes[i].Address.Compare(addr) >= 0
	})
	if i < len(s.Nodes) && s.Nodes[i].Address == addr {
		return s.Nodes[i], true
	}
	return NodeStatus{}, false
}

// toPublicSnapshot converts the wire snapshot to the public API type.
// Slices are copied so callbacks cannot alias store data.
func toPublicSnapshot(snap store.Snapshot) Snapshot {
	out := Snapshot{
		Nodes: make([]NodeStatus, 0, len(snap.Servers)),
		Summary: Summary{
			QPS:   snap.Summary.QPS,
			Nodes: snap.Summary.Nodes,
			Stale: snap.Summary.Stale,
		},
		GeneratedAt: snap.GeneratedAt,
	}

	for key, s := range snap.Servers {
		addr, err := netip.ParseAddr(key)
		if err != nil {
			continue
		}
		ns := NodeStatus{
			Address:           addr,
			Name:              s.Name,
			Names:             copyStrings(s.Names),
			ReportedName:      s.ReportedName,
			Groups:            copyStrings(s.Groups),
			Version:           s.Version,
			Queries:           s.Queries,
			QPS1m:             s.QPS1m,
			Status:            s.Status,
			Uptime:            time.Duration(s.Uptime * float64(time.Second)),
			ResponseTime:      time.Duration(s.ResponseTime.Value) * time.Millisecond,
			ResponseTimeKnown: s.ResponseTime.Valid,
			Transport:         s.Transport,
			ChannelOpen:       s.Channel == "open",
		}
		if s.QPS != nil {
			ns.QPS = *s.QPS
			ns.QPSKnown = true
		}
		if s.LastUpdateAt != nil {
			ns.LastUpdate = *s.LastUpdateAt
		}
		out.Nodes = append(out.Nodes, ns)
	}

	sort.Slice(out.Nodes, func(i, j int) bool {
		return out.Nodes[i].Address.Less(out.Nodes[j].Address)
	})
	return out
}

// copyStrings returns a copy of s, or nil if s is nil.
func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
