package node

import (
	"math"
	"net/netip"
	"strings"
	"time"
)

// ChannelState tells whether a push channel is active for a node.
type ChannelState int

const (
	ChannelClosed ChannelState = iota
	ChannelOpen
)

// String returns "open" or "closed".
func (s ChannelState) String() string {
	if s == ChannelOpen {
		return "open"
	}
	return "closed"
}

// Transport identifies how the most recent payload reached the monitor.
type Transport string

const (
	TransportNone Transport = ""
	TransportDNS  Transport = "dns"
	TransportWS   Transport = "ws"
)

// Rate is a queries-per-second value that may not be known yet.
type Rate struct {
	Value int64
	Known bool
}

// KnownRate returns a known rate of v.
func KnownRate(v int64) Rate {
	return Rate{Value: v, Known: true}
}

// OrZero returns the rate, or 0 when it is unknown.
func (r Rate) OrZero() int64 {
	if !r.Known {
		return 0
	}
	return r.Value
}

// Latency is the round-trip time of the last request/response poll. The
// zero value means no payload came back.
type Latency struct {
	Duration time.Duration
	Valid    bool
}

// LatencyOf returns a valid latency of d.
func LatencyOf(d time.Duration) Latency {
	return Latency{Duration: d, Valid: true}
}

// Milliseconds returns the latency in whole milliseconds.
func (l Latency) Milliseconds() int64 {
	return l.Duration.Milliseconds()
}

// Record is the monitor's view of a single node address.
//
// A zero time.Time means "absent" for LastUpdate, PollStartedAt,
// LastChannelAttempt and Started.
type Record struct {
	Address     netip.Addr
	Names       []string
	DisplayName string

	QueryCounter int64
	QPS          Rate
	LastUpdate   time.Time

	InFlight      bool
	PollStartedAt time.Time

	Channel            ChannelState
	LastChannelAttempt time.Time

	Version       string
	UptimeSeconds float64
	HasUptime     bool
	Started       time.Time
	UptimeText    string

	ResponseTime Latency
	Status       string
	Transport    Transport

	// reported by newer nodes only
	ReportedName string
	Groups       []string
	QPS1m        float64
}

// NewRecord returns an empty record for addr.
func NewRecord(addr netip.Addr) *Record {
	return &Record{Address: addr}
}

// AddName merges host into the record's names and recomputes the display
// name. It reports whether the name was new.
func (r *Record) AddName(host string) bool {
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if host == "" {
		return false
	}
	for _, n := range r.Names {
		if strings.EqualFold(n, host) {
			return false
		}
	}
	r.Names = append(r.Names, host)
	r.DisplayName = longestShortLabel(r.Names)
	return true
}

// longestShortLabel returns the longest label before the first dot among
// names. The first name wins ties.
func longestShortLabel(names []string) string {
	var best string
	for _, n := range names {
		short := n
		if i := strings.IndexByte(n, '.'); i >= 0 {
			short = n[:i]
		}
		if len(short) > len(best) {
			best = short
		}
	}
	return best
}

// Apply folds a parsed payload received at now into the record.
func (r *Record) Apply(p Payload, now time.Time) {
	// the node restarted and reset its own counter
	if r.QueryCounter > 0 && p.Queries != nil && *p.Queries < r.QueryCounter {
		r.QueryCounter = 0
	}

	if r.QueryCounter > 0 && !r.LastUpdate.IsZero() && p.Queries != nil {
		elapsed := now.Sub(r.LastUpdate).Seconds()
		if elapsed > 0 {
			delta := float64(*p.Queries - r.QueryCounter)
			r.QPS = KnownRate(int64(math.Floor(delta / elapsed)))
		}
	}

	r.LastUpdate = now
	if p.Queries != nil {
		r.QueryCounter = *p.Queries
	}

	if p.Version != "" {
		r.Version = NormalizeVersion(p.Version)
	}

	if p.Uptime != nil {
		r.UptimeSeconds = *p.Uptime
		r.HasUptime = true
		up := time.Duration(*p.Uptime * float64(time.Second))
		r.Started = now.Add(-up)
		r.UptimeText = FormatDuration(now.Sub(r.Started))
	}

	if name := p.reportedName(); name != "" {
		r.ReportedName = name
	}
	if len(p.Groups) > 0 {
		r.Groups = append([]string(nil), p.Groups...)
	}
	if p.QPS1m != nil && *p.QPS1m > 0 {
		r.QPS1m = *p.QPS1m
	}

	r.Status = ""
}

// Process parses raw and applies it. A malformed payload leaves every field
// except Status untouched and is returned as a *ParseError.
func (r *Record) Process(raw []byte, now time.Time) error {
	p, err := ParsePayload(raw)
	if err != nil {
		r.Status = err.Error()
		return err
	}
	r.Apply(p, now)
	return nil
}

// IsStale reports whether the record has gone without an update for longer
// than window at now. A record that never received an update is stale.
func (r *Record) IsStale(now time.Time, window time.Duration) bool {
	if r.LastUpdate.IsZero() {
		return true
	}
	return now.After(r.LastUpdate.Add(window))
}

// ResetRate drops the derived rate data of a record that stopped reporting,
// so a later sample does not compute a rate across the gap.
func (r *Record) ResetRate() {
	r.QPS = KnownRate(0)
	r.QueryCounter = 0
	r.ResponseTime = Latency{}
}

// NormalizeVersion drops a "tag," prefix from a reported version string.
func NormalizeVersion(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		return strings.TrimSpace(v[i+1:])
	}
	return strings.TrimSpace(v)
}
