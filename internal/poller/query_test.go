package poller

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/dnsmonitor/internal/node"
)

func TestPoll_IssuesQuery(t *testing.T) {
	q := newFakeQuerier()
	e, clock := newTestEngine(t, Config{}, q, nil)
	rec := addNode(e, "192.0.2.1")

	e.onTick(rec.Address)

	assert.True(t, rec.InFlight)
	assert.Equal(t, clock.Now(), rec.PollStartedAt)
	require.Contains(t, e.polls, rec.Address)
	require.Eventually(t, func() bool { return q.Calls() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPoll_SingleInFlight(t *testing.T) {
	q := newFakeQuerier()
	e, clock := newTestEngine(t, Config{}, q, nil)
	rec := addNode(e, "192.0.2.1")

	e.onTick(rec.Address)
	seq := e.polls[rec.Address]

	clock.Advance(3 * time.Second)
	e.onTick(rec.Address)

	assert.True(t, rec.InFlight)
	assert.Equal(t, StatusWaiting, rec.Status)
	assert.Equal(t, seq, e.polls[rec.Address], "no new query while one is outstanding")
}

func TestPoll_StuckRecoveryWithoutUpdate(t *testing.T) {
	e, clock := newTestEngine(t, Config{}, nil, nil)
	rec := addNode(e, "192.0.2.1")

	e.onTick(rec.Address)
	first := e.polls[rec.Address]

	// exactly at the limit the poll is still considered outstanding
	clock.Advance(18 * time.Second)
	e.onTick(rec.Address)
	assert.True(t, rec.InFlight)
	assert.Equal(t, StatusWaiting, rec.Status)

	clock.Advance(time.Millisecond)
	e.onTick(rec.Address)
	assert.False(t, rec.InFlight)
	assert.Equal(t, StatusRetrying, rec.Status)
	assert.NotContains(t, e.polls, rec.Address)

	// the next tick starts a fresh query
	e.onTick(rec.Address)
	assert.True(t, rec.InFlight)
	assert.NotEqual(t, first, e.polls[rec.Address])
}

func TestPoll_StuckLimitCountsFromLastUpdate(t *testing.T) {
	e, clock := newTestEngine(t, Config{}, nil, nil)
	rec := addNode(e, "192.0.2.1")

	clock.Advance(time.Minute)
	rec.LastUpdate = clock.Now()
	e.onTick(rec.Address)

	// well past boot + 18s, but not past lastUpdate + 18s
	clock.Advance(17 * time.Second)
	e.onTick(rec.Address)
	assert.True(t, rec.InFlight)
	assert.Equal(t, StatusWaiting, rec.Status)

	clock.Advance(2 * time.Second)
	e.onTick(rec.Address)
	assert.False(t, rec.InFlight)
	assert.Equal(t, StatusRetrying, rec.Status)
}

func TestQueryResult_AppliesJoinedFragments(t *testing.T) {
	q := newFakeQuerier()
	e, clock := newTestEngine(t, Config{}, q, nil)
	rec := addNode(e, "192.0.2.1")

	e.onTick(rec.Address)
	q.responses <- Response{Fragments: []string{`{"qs":100,`, `"up":500,"v":"4,0.9"}`}}

	ev := nextEvent(t, e)
	require.IsType(t, queryResultEvent{}, ev)

	clock.Advance(40 * time.Millisecond)
	e.handle(ev)

	assert.Equal(t, int64(100), rec.QueryCounter)
	assert.False(t, rec.QPS.Known)
	assert.Equal(t, "0.9", rec.Version)
	assert.Equal(t, node.TransportDNS, rec.Transport)
	assert.Equal(t, "", rec.Status)
	assert.False(t, rec.InFlight)
	assert.True(t, rec.PollStartedAt.IsZero())
	require.True(t, rec.ResponseTime.Valid)
	assert.Equal(t, int64(40), rec.ResponseTime.Milliseconds())
	assert.NotContains(t, e.polls, rec.Address)
}

func TestQueryResult_RateAcrossPolls(t *testing.T) {
	q := newFakeQuerier()
	e, clock := newTestEngine(t, Config{}, q, nil)
	rec := addNode(e, "192.0.2.1")

	samples := []string{`{"qs":100}`, `{"qs":130}`}
	for _, payload := range samples {
		e.onTick(rec.Address)
		q.responses <- Response{Fragments: []string{payload}}
		e.handle(nextEvent(t, e))
		clock.Advance(3 * time.Second)
	}

	require.True(t, rec.QPS.Known)
	assert.Equal(t, int64(10), rec.QPS.Value)
	assert.Equal(t, int64(130), rec.QueryCounter)
}

func TestQueryTimeout_RetriedOnNextTick(t *testing.T) {
	q := newFakeQuerier()
	cfg := Config{Interval: 50 * time.Millisecond}
	e, clock := newTestEngine(t, cfg, q, nil)
	rec := addNode(e, "192.0.2.1")

	e.onTick(rec.Address)
	first := e.polls[rec.Address]

	// nothing ever answers; the query ends at its deadline
	start := time.Now()
	ev := nextEvent(t, e)
	require.IsType(t, queryResultEvent{}, ev)
	assert.GreaterOrEqual(t, time.Since(start), cfg.QueryTimeout()-10*time.Millisecond)

	clock.Advance(cfg.QueryTimeout())
	e.handle(ev)
	assert.Equal(t, StatusTimeout, rec.Status)
	assert.False(t, rec.InFlight)
	assert.False(t, rec.ResponseTime.Valid)
	assert.NotContains(t, e.polls, rec.Address)

	clock.Advance(cfg.Interval / 5)
	e.onTick(rec.Address)
	assert.True(t, rec.InFlight)
	require.Contains(t, e.polls, rec.Address)
	assert.NotEqual(t, first, e.polls[rec.Address])
	require.Eventually(t, func() bool { return q.Calls() == 2 }, time.Second, 5*time.Millisecond)
}

func TestQueryResult_SupersededPoll(t *testing.T) {
	e, clock := newTestEngine(t, Config{}, nil, nil)
	rec := addNode(e, "192.0.2.1")

	e.onTick(rec.Address)
	first := e.polls[rec.Address]

	clock.Advance(18*time.Second + time.Millisecond)
	e.onTick(rec.Address) // stuck recovery
	e.onTick(rec.Address) // fresh query
	second := e.polls[rec.Address]
	started := rec.PollStartedAt
	require.NotEqual(t, first, second)

	e.handle(queryResultEvent{
		addr: rec.Address,
		seq:  first,
		resp: Response{Fragments: []string{`{"qs":5}`}},
	})

	// payload applied, the newer query's bookkeeping untouched
	assert.Equal(t, int64(5), rec.QueryCounter)
	assert.True(t, rec.InFlight)
	assert.Equal(t, started, rec.PollStartedAt)
	assert.Equal(t, second, e.polls[rec.Address])
}

func TestQueryResult_Failures(t *testing.T) {
	tests := []struct {
		name       string
		resp       Response
		wantStatus string
	}{
		{
			name:       "transport error",
			resp:       Response{Error: errors.New("query 192.0.2.1: connection refused")},
			wantStatus: "query 192.0.2.1: connection refused",
		},
		{
			name:       "query deadline",
			resp:       Response{Error: fmt.Errorf("query 192.0.2.1: %w", context.DeadlineExceeded)},
			wantStatus: StatusTimeout,
		},
		{
			name:       "no answers",
			resp:       Response{},
			wantStatus: StatusEmptyResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t, Config{}, nil, nil)
			rec := addNode(e, "192.0.2.1")
			rec.QueryCounter = 50
			rec.ResponseTime = node.LatencyOf(20 * time.Millisecond)

			e.onTick(rec.Address)
			e.handle(queryResultEvent{addr: rec.Address, seq: e.polls[rec.Address], resp: tt.resp})

			assert.Equal(t, tt.wantStatus, rec.Status)
			assert.False(t, rec.InFlight)
			assert.False(t, rec.ResponseTime.Valid)
			assert.True(t, rec.PollStartedAt.IsZero())
			assert.Equal(t, int64(50), rec.QueryCounter)
		})
	}
}

func TestQueryResult_ParseErrorKeepsFields(t *testing.T) {
	e, clock := newTestEngine(t, Config{}, nil, nil)
	rec := addNode(e, "192.0.2.1")
	rec.QueryCounter = 100
	rec.QPS = node.KnownRate(12)
	rec.Version = "0.9"

	e.onTick(rec.Address)
	clock.Advance(10 * time.Millisecond)
	e.handle(queryResultEvent{
		addr: rec.Address,
		seq:  e.polls[rec.Address],
		resp: Response{Fragments: []string{`{"qs":`}},
	})

	assert.Contains(t, rec.Status, "parse error")
	assert.Equal(t, int64(100), rec.QueryCounter)
	assert.Equal(t, node.KnownRate(12), rec.QPS)
	assert.Equal(t, "0.9", rec.Version)
	assert.False(t, rec.InFlight)
	// a payload did arrive, so the round trip is recorded
	assert.True(t, rec.ResponseTime.Valid)
}

func TestQueryResult_UnknownNodeIgnored(t *testing.T) {
	e, _ := newTestEngine(t, Config{}, nil, nil)
	addr := netip.MustParseAddr("192.0.2.9")

	assert.NotPanics(t, func() {
		e.handle(queryResultEvent{addr: addr, seq: 1, resp: Response{Fragments: []string{`{"qs":1}`}}})
		e.onTick(addr)
	})
	assert.Equal(t, 0, e.registry.Len())
}
