package node

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddIsCreateOnce(t *testing.T) {
	g := NewRegistry()
	addr := netip.MustParseAddr("198.51.100.1")

	r1, created := g.Add(addr)
	require.True(t, created)
	r1.QueryCounter = 42

	r2, created := g.Add(addr)
	assert.False(t, created)
	assert.Same(t, r1, r2)
	assert.Equal(t, 1, g.Len())
}

func TestRegistry_AddNameMerges(t *testing.T) {
	g := NewRegistry()
	addr := netip.MustParseAddr("198.51.100.1")

	_, created := g.AddName(addr, "a.example.com")
	assert.True(t, created)
	rec, created := g.AddName(addr, "longer.example.net")
	assert.False(t, created)

	assert.Equal(t, []string{"a.example.com", "longer.example.net"}, rec.Names)
	assert.Equal(t, "longer", rec.DisplayName)
}

func TestRegistry_EachInFirstSeenOrder(t *testing.T) {
	g := NewRegistry()
	addrs := []netip.Addr{
		netip.MustParseAddr("198.51.100.3"),
		netip.MustParseAddr("198.51.100.1"),
		netip.MustParseAddr("198.51.100.2"),
	}
	for _, a := range addrs {
		g.Add(a)
	}
	g.Add(addrs[0])

	var seen []netip.Addr
	g.Each(func(r *Record) { seen = append(seen, r.Address) })
	assert.Equal(t, addrs, seen)
}

func TestRegistry_Remove(t *testing.T) {
	g := NewRegistry()
	a := netip.MustParseAddr("198.51.100.1")
	b := netip.MustParseAddr("198.51.100.2")
	g.Add(a)
	g.Add(b)

	assert.True(t, g.Remove(a))
	assert.False(t, g.Remove(a))

	_, ok := g.Get(a)
	assert.False(t, ok)
	assert.Equal(t, 1, g.Len())

	var seen []netip.Addr
	g.Each(func(r *Record) { seen = append(seen, r.Address) })
	assert.Equal(t, []netip.Addr{b}, seen)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{500 * time.Millisecond, "0s"},
		{5 * time.Second, "5s"},
		{65 * time.Second, "1m 5s"},
		{3670 * time.Second, "1h 1m"},
		{26*time.Hour + 3*time.Minute, "1d 2h 3m"},
		{-5 * time.Second, "-5s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.d), "FormatDuration(%v)", tt.d)
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "never", FormatAge(time.Time{}, now))
	assert.Equal(t, "7s ago", FormatAge(now.Add(-7*time.Second), now))
}
