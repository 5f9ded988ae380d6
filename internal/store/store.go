package store

import (
	"encoding/json"
	"time"
)

// Millis is a response time in milliseconds that serializes as false when
// no response was received.
type Millis struct {
	Value int64
	Valid bool
}

// MarshalJSON implements json.Marshaler.
func (m Millis) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("false"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Millis) UnmarshalJSON(data []byte) error {
	if string(data) == "false" || string(data) == "null" {
		*m = Millis{}
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Millis{Value: v, Valid: true}
	return nil
}

// ServerStatus is the display view of one monitored node.
type ServerStatus struct {
	// Name is the node's display name (its longest short hostname label).
	Name string `json:"name"`

	// Names lists every hostname discovered for the address.
	Names []string `json:"names"`

	// IP is the node address.
	IP string `json:"ip"`

	// ReportedName is the identifier the node reports about itself, if any.
	ReportedName string `json:"reported_name,omitempty"`

	Groups []string `json:"groups,omitempty"`

	Version string `json:"version"`

	// Queries is the last cumulative query counter.
	Queries int64 `json:"queries"`

	// QPS is nil until two samples have been seen.
	QPS *int64 `json:"qps"`

	// QPS1m is the one-minute rate reported by the node itself.
	QPS1m float64 `json:"qps1m"`

	Status string `json:"status"`

	// Uptime is the last reported uptime in seconds.
	Uptime float64 `json:"uptime"`

	// UptimeText is the uptime in human form, e.g. "3d 4h 5m".
	UptimeText string `json:"uptime_p"`

	// LastUpdate is the age of the last payload, e.g. "4s ago".
	LastUpdate string `json:"last_update"`

	// LastUpdateAt is nil if the node never reported.
	LastUpdateAt *time.Time `json:"last_update_at"`

	ResponseTime Millis `json:"response_time"`

	// Transport is "dns" or "ws" once a payload has arrived.
	Transport string `json:"transport"`

	// Channel is "open" or "closed".
	Channel string `json:"channel"`
}

// Summary aggregates all nodes.
type Summary struct {
	// QPS is the sum of all known node rates except excluded addresses.
	QPS int64 `json:"qps"`

	// Nodes is the number of monitored addresses.
	Nodes int `json:"nodes"`

	// Stale counts nodes without a recent update.
	Stale int `json:"stale"`
}

// Snapshot is an immutable point-in-time view of every monitored node,
// keyed by address.
type Snapshot struct {
	Servers     map[string]ServerStatus `json:"servers"`
	Summary     Summary                 `json:"summary"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// Store holds the latest snapshot and fans new ones out to subscribers.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Update replaces the current snapshot and notifies all subscribers.
	Update(snap Snapshot)

	// Latest returns the current snapshot. ok is false before the first
	// Update.
	Latest() (snap Snapshot, ok bool)

	// Subscribe returns a channel that receives snapshots. Slow consumers may
	// miss updates. Caller must call Unsubscribe when done.
	Subscribe() <-chan Snapshot

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Snapshot)
}
