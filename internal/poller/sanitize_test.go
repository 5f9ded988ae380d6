package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/dnsmonitor/internal/node"
)

func TestSanitize_SilentNodeWithChannel(t *testing.T) {
	dialer := newFakeDialer()
	e, clock := newTestEngine(t, pushConfig(), nil, dialer)
	rec := addNode(e, "192.0.2.1")

	ch := newFakeChannel()
	e.onTick(rec.Address)
	dialer.results <- dialResult{ch: ch}
	e.handle(nextEvent(t, e))

	ch.messages <- []byte(`{"qs":100}`)
	e.handle(nextEvent(t, e))
	clock.Advance(3 * time.Second)
	ch.messages <- []byte(`{"qs":130}`)
	e.handle(nextEvent(t, e))
	require.Equal(t, node.KnownRate(10), rec.QPS)

	clock.Advance(10500*time.Millisecond + time.Millisecond)
	e.sanitize()

	assert.Equal(t, node.KnownRate(0), rec.QPS)
	assert.Equal(t, int64(0), rec.QueryCounter)
	assert.False(t, rec.ResponseTime.Valid)
	assert.Equal(t, node.ChannelClosed, rec.Channel)
	assert.True(t, ch.IsClosed())
	assert.NotContains(t, e.chans, rec.Address)
	assert.Equal(t, 1, e.registry.Len(), "records are never removed")
}

func TestSanitize_FreshNodeUntouched(t *testing.T) {
	e, clock := newTestEngine(t, Config{}, nil, nil)
	rec := addNode(e, "192.0.2.1")
	rec.LastUpdate = clock.Now()
	rec.QueryCounter = 500
	rec.QPS = node.KnownRate(42)
	rec.ResponseTime = node.LatencyOf(12 * time.Millisecond)

	// exactly at the window the node is still fresh
	clock.Advance(10500 * time.Millisecond)
	e.sanitize()

	assert.Equal(t, node.KnownRate(42), rec.QPS)
	assert.Equal(t, int64(500), rec.QueryCounter)
	assert.True(t, rec.ResponseTime.Valid)
}

func TestSanitize_NeverUpdatedLeavesInFlight(t *testing.T) {
	e, _ := newTestEngine(t, Config{}, nil, nil)
	rec := addNode(e, "192.0.2.1")

	e.onTick(rec.Address)
	require.True(t, rec.InFlight)

	e.sanitize()

	assert.True(t, rec.InFlight)
	assert.Equal(t, node.KnownRate(0), rec.QPS)
	assert.Contains(t, e.polls, rec.Address)
}

func TestSanitize_NextSampleDoesNotSpanGap(t *testing.T) {
	e, clock := newTestEngine(t, Config{}, nil, nil)
	rec := addNode(e, "192.0.2.1")

	require.NoError(t, rec.Process([]byte(`{"qs":1000}`), clock.Now()))
	clock.Advance(time.Minute)
	e.sanitize()

	require.NoError(t, rec.Process([]byte(`{"qs":5000}`), clock.Now()))
	assert.Equal(t, node.KnownRate(0), rec.QPS, "no rate across the silent gap")
	assert.Equal(t, int64(5000), rec.QueryCounter)
}
