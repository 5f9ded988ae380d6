package node

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAddr = netip.MustParseAddr("192.0.2.10")
	t0       = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func process(t *testing.T, r *Record, raw string, at time.Time) {
	t.Helper()
	require.NoError(t, r.Process([]byte(raw), at))
}

func TestProcess_FirstSample(t *testing.T) {
	r := NewRecord(testAddr)

	process(t, r, `{"qs":100,"up":500,"v":"4,0.9"}`, t0)

	assert.Equal(t, int64(100), r.QueryCounter)
	assert.False(t, r.QPS.Known, "rate must stay unknown after a single sample")
	assert.Equal(t, "0.9", r.Version)
	assert.Equal(t, t0, r.LastUpdate)
	assert.True(t, r.HasUptime)
	assert.Equal(t, 500.0, r.UptimeSeconds)
	assert.Equal(t, t0.Add(-500*time.Second), r.Started)
	assert.Equal(t, "8m 20s", r.UptimeText)
}

func TestProcess_RateFromCounterDelta(t *testing.T) {
	r := NewRecord(testAddr)
	process(t, r, `{"qs":100,"up":500,"v":"4,0.9"}`, t0)

	process(t, r, `{"qs":130}`, t0.Add(3*time.Second))

	assert.Equal(t, KnownRate(10), r.QPS)
	assert.Equal(t, int64(130), r.QueryCounter)
	// absent fields keep their previous values
	assert.Equal(t, "0.9", r.Version)
}

func TestProcess_CounterReset(t *testing.T) {
	r := NewRecord(testAddr)
	process(t, r, `{"qs":100}`, t0)
	process(t, r, `{"qs":130}`, t0.Add(3*time.Second))

	process(t, r, `{"qs":20}`, t0.Add(6*time.Second))
	assert.Equal(t, int64(20), r.QueryCounter)
	assert.GreaterOrEqual(t, r.QPS.Value, int64(0), "a reset must never yield a negative rate")

	process(t, r, `{"qs":50}`, t0.Add(9*time.Second))
	assert.Equal(t, KnownRate(10), r.QPS)
}

func TestProcess_RateIsFloored(t *testing.T) {
	tests := []struct {
		name    string
		c1, c2  string
		elapsed time.Duration
		want    int64
	}{
		{"exact", `{"qs":1000}`, `{"qs":1300}`, 3 * time.Second, 100},
		{"fractional", `{"qs":1000}`, `{"qs":1010}`, 3 * time.Second, 3},
		{"sub-second", `{"qs":1000}`, `{"qs":1001}`, 500 * time.Millisecond, 2},
		{"no traffic", `{"qs":1000}`, `{"qs":1000}`, 3 * time.Second, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecord(testAddr)
			process(t, r, tt.c1, t0)
			process(t, r, tt.c2, t0.Add(tt.elapsed))
			assert.Equal(t, KnownRate(tt.want), r.QPS)
		})
	}
}

func TestProcess_ZeroElapsedLeavesRateUnknown(t *testing.T) {
	r := NewRecord(testAddr)
	process(t, r, `{"qs":100}`, t0)
	process(t, r, `{"qs":200}`, t0)

	assert.False(t, r.QPS.Known)
	assert.Equal(t, int64(200), r.QueryCounter)
}

func TestProcess_MissingCounterKeepsBaseline(t *testing.T) {
	r := NewRecord(testAddr)
	process(t, r, `{"qs":100}`, t0)
	process(t, r, `{"up":10}`, t0.Add(3*time.Second))

	assert.Equal(t, int64(100), r.QueryCounter)
	assert.False(t, r.QPS.Known)
	assert.Equal(t, t0.Add(3*time.Second), r.LastUpdate, "lastUpdate moves on every parsed payload")
}

func TestProcess_ClearsStatus(t *testing.T) {
	r := NewRecord(testAddr)
	r.Status = "timeout"

	process(t, r, `{}`, t0)

	assert.Empty(t, r.Status)
}

func TestProcess_ParseErrorLeavesFieldsIntact(t *testing.T) {
	r := NewRecord(testAddr)
	process(t, r, `{"qs":100,"v":"1.2"}`, t0)
	process(t, r, `{"qs":130}`, t0.Add(3*time.Second))

	err := r.Process([]byte(`{"qs":`), t0.Add(6*time.Second))

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, r.Status, "parse error")
	assert.Equal(t, int64(130), r.QueryCounter)
	assert.Equal(t, KnownRate(10), r.QPS)
	assert.Equal(t, "1.2", r.Version)
	assert.Equal(t, t0.Add(3*time.Second), r.LastUpdate)
}

func TestParsePayload_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace", "  \n "},
		{"truncated", `{"qs":1`},
		{"not an object", `[1,2,3]`},
		{"wrong type", `{"qs":"many"}`},
		{"negative counter", `{"qs":-5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload([]byte(tt.raw))
			var perr *ParseError
			assert.True(t, errors.As(err, &perr), "got %v", err)
		})
	}
}

func TestProcess_NegativeCounterRejected(t *testing.T) {
	r := NewRecord(testAddr)
	process(t, r, `{"qs":100}`, t0)
	process(t, r, `{"qs":130}`, t0.Add(3*time.Second))

	err := r.Process([]byte(`{"qs":-5}`), t0.Add(6*time.Second))

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "parse error: negative query counter -5", r.Status)
	assert.Equal(t, int64(130), r.QueryCounter)
	assert.Equal(t, KnownRate(10), r.QPS)
	assert.Equal(t, t0.Add(3*time.Second), r.LastUpdate)
}

func TestParsePayload_NewlineJoinedFragments(t *testing.T) {
	p, err := ParsePayload([]byte("{\"qs\":5,\n\"v\":\"geodns,3.2\"}"))
	require.NoError(t, err)
	require.NotNil(t, p.Queries)
	assert.Equal(t, int64(5), *p.Queries)
	assert.Equal(t, "geodns,3.2", p.Version)
}

func TestProcess_ExtendedFields(t *testing.T) {
	r := NewRecord(testAddr)
	process(t, r, `{"h":"fra1.example.net","groups":["eu","fra"],"qps1m":12.5}`, t0)

	assert.Equal(t, "fra1.example.net", r.ReportedName)
	assert.Equal(t, []string{"eu", "fra"}, r.Groups)
	assert.Equal(t, 12.5, r.QPS1m)

	process(t, r, `{"id":"fra1"}`, t0.Add(time.Second))
	assert.Equal(t, "fra1", r.ReportedName)
}

func TestNormalizeVersion(t *testing.T) {
	tests := map[string]string{
		"4,0.9":          "0.9",
		"4, 0.9":         "0.9",
		"2.4.1":          "2.4.1",
		"a,b,c":          "b,c",
		"":               "",
		"geodns,3.0.0-1": "3.0.0-1",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeVersion(in), "NormalizeVersion(%q)", in)
	}
}

func TestAddName_DisplayNameIsLongestShortLabel(t *testing.T) {
	r := NewRecord(testAddr)

	assert.True(t, r.AddName("ns1.example.com."))
	assert.Equal(t, "ns1", r.DisplayName)

	assert.True(t, r.AddName("fra-anycast.example.net"))
	assert.Equal(t, "fra-anycast", r.DisplayName)

	assert.True(t, r.AddName("ams.example.org"))
	assert.Equal(t, "fra-anycast", r.DisplayName)

	assert.False(t, r.AddName("NS1.example.com"), "names are case-insensitive")
	assert.Equal(t, []string{"ns1.example.com", "fra-anycast.example.net", "ams.example.org"}, r.Names)
}

func TestAddName_TiesKeepFirst(t *testing.T) {
	r := NewRecord(testAddr)
	r.AddName("abc.example.com")
	r.AddName("xyz.example.com")
	assert.Equal(t, "abc", r.DisplayName)
}

func TestAddName_NoDot(t *testing.T) {
	r := NewRecord(testAddr)
	r.AddName("localhost")
	assert.Equal(t, "localhost", r.DisplayName)
	assert.False(t, r.AddName(""))
}

func TestIsStaleAndResetRate(t *testing.T) {
	window := 10500 * time.Millisecond
	r := NewRecord(testAddr)
	assert.True(t, r.IsStale(t0, window), "never updated is stale")

	process(t, r, `{"qs":100}`, t0)
	process(t, r, `{"qs":130}`, t0.Add(3*time.Second))
	r.ResponseTime = LatencyOf(12 * time.Millisecond)

	last := t0.Add(3 * time.Second)
	assert.False(t, r.IsStale(last.Add(window), window))
	assert.True(t, r.IsStale(last.Add(window+time.Millisecond), window))

	r.ResetRate()
	assert.Equal(t, KnownRate(0), r.QPS)
	assert.Zero(t, r.QueryCounter)
	assert.False(t, r.ResponseTime.Valid)

	// the next sample starts a new baseline rather than spanning the gap
	process(t, r, `{"qs":500}`, last.Add(time.Minute))
	assert.Equal(t, KnownRate(0), r.QPS)
	assert.Equal(t, int64(500), r.QueryCounter)
}
