package node

import "net/netip"

// Registry maps node addresses to their records and remembers the order in
// which addresses were first seen.
type Registry struct {
	records map[netip.Addr]*Record
	order   []netip.Addr
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[netip.Addr]*Record)}
}

// Get returns the record for addr.
func (g *Registry) Get(addr netip.Addr) (*Record, bool) {
	r, ok := g.records[addr]
	return r, ok
}

// Add returns the record for addr, creating it on first sighting. created
// reports whether a new record was made.
func (g *Registry) Add(addr netip.Addr) (rec *Record, created bool) {
	if r, ok := g.records[addr]; ok {
		return r, false
	}
	r := NewRecord(addr)
	g.records[addr] = r
	g.order = append(g.order, addr)
	return r, true
}

// AddName records that host resolves to addr, creating the record if
// needed.
func (g *Registry) AddName(addr netip.Addr, host string) (rec *Record, created bool) {
	rec, created = g.Add(addr)
	rec.AddName(host)
	return rec, created
}

// Remove deletes the record for addr. It reports whether a record existed.
func (g *Registry) Remove(addr netip.Addr) bool {
	if _, ok := g.records[addr]; !ok {
		return false
	}
	delete(g.records, addr)
	for i, a := range g.order {
		if a == addr {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return true
}

// Each calls fn for every record in first-seen order.
func (g *Registry) Each(fn func(*Record)) {
	for _, addr := range g.order {
		fn(g.records[addr])
	}
}

// Len returns the number of records.
func (g *Registry) Len() int {
	return len(g.records)
}
