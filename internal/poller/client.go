package poller

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DefaultStatusName is the TXT record every node publishes its status at.
const DefaultStatusName = "_status.pgeodns"

// DefaultDNSPort is the port status queries are sent to.
const DefaultDNSPort = 53

// Response holds the result of one status query made by a [StatusQuerier].
type Response struct {
	// Fragments has one entry per TXT record in the answer, each with its
	// character-strings joined.
	Fragments []string

	// Latency is the total time taken for the query.
	Latency time.Duration

	// Error contains any transport or rcode failure.
	Error error
}

// StatusQuerier fetches the status TXT record from a node.
//
// QueryStatus must return once ctx is done.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, addr netip.Addr) Response
}

// Client queries node status records over UDP.
//
// Client uses per-query deadlines via context rather than a global timeout.
type Client struct {
	name string
	port string
}

// NewClient creates a [Client] asking for the TXT record name on port.
// Empty name and zero port select the defaults.
func NewClient(name string, port int) *Client {
	if name == "" {
		name = DefaultStatusName
	}
	if port == 0 {
		port = DefaultDNSPort
	}
	return &Client{
		name: dns.Fqdn(name),
		port: strconv.Itoa(port),
	}
}

// Name returns the fully qualified status record name.
func (c *Client) Name() string {
	return c.name
}

// QueryStatus sends one non-recursive TXT query to addr.
//
// QueryStatus always returns a Response; errors are captured in the Error
// field rather than returned separately. Cancelling ctx aborts the read.
func (c *Client) QueryStatus(ctx context.Context, addr netip.Addr) Response {
	start := time.Now()

	m := new(dns.Msg)
	m.SetQuestion(c.name, dns.TypeTXT)
	m.RecursionDesired = false

	client := &dns.Client{Net: "udp"}
	if deadline, ok := ctx.Deadline(); ok {
		client.Timeout = time.Until(deadline)
	}

	conn, err := client.DialContext(ctx, net.JoinHostPort(addr.String(), c.port))
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("dial %s: %w", addr, err),
		}
	}
	defer func() { _ = conn.Close() }()

	// unblock the read when ctx is cancelled
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	in, _, err := client.ExchangeWithConnContext(ctx, m, conn)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("query %s: %w", addr, err),
		}
	}

	if in.Rcode != dns.RcodeSuccess {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("query %s: %s", addr, dns.RcodeToString[in.Rcode]),
		}
	}

	return Response{
		Fragments: txtFragments(in.Answer),
		Latency:   time.Since(start),
	}
}

// txtFragments returns one fragment per TXT record in answer.
func txtFragments(answer []dns.RR) []string {
	var out []string
	for _, rr := range answer {
		if txt, ok := rr.(*dns.TXT); ok {
			out = append(out, strings.Join(txt.Txt, ""))
		}
	}
	return out
}
