package poller

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loopback = netip.MustParseAddr("127.0.0.1")

// startDNSServer serves handler over UDP on a loopback port and returns the
// listen address.
func startDNSServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		Handler:           handler,
		NotifyStartedFunc: func() { close(started) },
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func portOf(t *testing.T, addr string) int {
	t.Helper()
	_, p, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(p)
	require.NoError(t, err)
	return port
}

func txtRR(name string, txt ...string) *dns.TXT {
	return &dns.TXT{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeTXT, Class: dns.ClassINET},
		Txt: txt,
	}
}

func TestClient_QueryStatus(t *testing.T) {
	asked := make(chan string, 1)
	addr := startDNSServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		select {
		case asked <- r.Question[0].Name:
		default:
		}
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = append(m.Answer,
			txtRR(r.Question[0].Name, `{"qs":100,`, `"up":5}`),
			txtRR(r.Question[0].Name, `second`),
		)
		_ = w.WriteMsg(m)
	})

	client := NewClient("", portOf(t, addr))
	resp := client.QueryStatus(context.Background(), loopback)

	require.NoError(t, resp.Error)
	assert.Equal(t, []string{`{"qs":100,"up":5}`, "second"}, resp.Fragments)
	assert.Equal(t, "_status.pgeodns.", <-asked)
	assert.Greater(t, resp.Latency, time.Duration(0))
}

func TestClient_CustomName(t *testing.T) {
	client := NewClient("_status.example", 5353)
	assert.Equal(t, "_status.example.", client.Name())
}

func TestClient_EmptyAnswer(t *testing.T) {
	addr := startDNSServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		_ = w.WriteMsg(m)
	})

	resp := NewClient("", portOf(t, addr)).QueryStatus(context.Background(), loopback)

	require.NoError(t, resp.Error)
	assert.Empty(t, resp.Fragments)
}

func TestClient_ErrorRcode(t *testing.T) {
	addr := startDNSServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeNameError)
		_ = w.WriteMsg(m)
	})

	resp := NewClient("", portOf(t, addr)).QueryStatus(context.Background(), loopback)

	require.Error(t, resp.Error)
	assert.Contains(t, resp.Error.Error(), "NXDOMAIN")
}

func TestClient_CancelAbortsRead(t *testing.T) {
	// never answers
	addr := startDNSServer(t, func(w dns.ResponseWriter, r *dns.Msg) {})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	resp := NewClient("", portOf(t, addr)).QueryStatus(ctx, loopback)

	require.Error(t, resp.Error)
	assert.True(t, errors.Is(resp.Error, context.Canceled))
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_DeadlineIsTimeout(t *testing.T) {
	addr := startDNSServer(t, func(w dns.ResponseWriter, r *dns.Msg) {})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	resp := NewClient("", portOf(t, addr)).QueryStatus(ctx, loopback)

	require.Error(t, resp.Error)
	assert.True(t, isTimeout(resp.Error))
}
