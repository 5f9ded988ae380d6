package poller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	defaultResolvConf      = "/etc/resolv.conf"
	defaultResolverTimeout = 5 * time.Second
)

// Resolver performs the lookups used by discovery.
type Resolver interface {
	// LookupNS returns the nameserver hosts of domain.
	LookupNS(ctx context.Context, domain string) ([]string, error)

	// LookupTXT returns every character-string of every TXT record at name.
	LookupTXT(ctx context.Context, name string) ([]string, error)

	// LookupAddrs returns the A addresses of host.
	LookupAddrs(ctx context.Context, host string) ([]netip.Addr, error)
}

// DNSResolver is a stub resolver asking recursive servers with miekg/dns.
type DNSResolver struct {
	servers []string
	timeout time.Duration
}

// NewDNSResolver creates a resolver that asks servers in order. With no
// servers the nameservers of /etc/resolv.conf are used.
func NewDNSResolver(servers ...string) (*DNSResolver, error) {
	if len(servers) == 0 {
		conf, err := dns.ClientConfigFromFile(defaultResolvConf)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", defaultResolvConf, err)
		}
		for _, s := range conf.Servers {
			servers = append(servers, net.JoinHostPort(s, conf.Port))
		}
	}

	normalized := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		normalized = append(normalized, s)
	}
	if len(normalized) == 0 {
		return nil, errors.New("no resolver servers configured")
	}

	return &DNSResolver{servers: normalized, timeout: defaultResolverTimeout}, nil
}

// Servers returns the servers asked, in order.
func (r *DNSResolver) Servers() []string {
	return append([]string(nil), r.servers...)
}

// LookupNS implements [Resolver].
func (r *DNSResolver) LookupNS(ctx context.Context, domain string) ([]string, error) {
	in, err := r.exchange(ctx, domain, dns.TypeNS)
	if err != nil {
		return nil, err
	}
	var hosts []string
	for _, rr := range in.Answer {
		if ns, ok := rr.(*dns.NS); ok {
			hosts = append(hosts, strings.TrimSuffix(ns.Ns, "."))
		}
	}
	return hosts, nil
}

// LookupTXT implements [Resolver].
func (r *DNSResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	in, err := r.exchange(ctx, name, dns.TypeTXT)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rr := range in.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			out = append(out, txt.Txt...)
		}
	}
	return out, nil
}

// LookupAddrs implements [Resolver].
func (r *DNSResolver) LookupAddrs(ctx context.Context, host string) ([]netip.Addr, error) {
	in, err := r.exchange(ctx, host, dns.TypeA)
	if err != nil {
		return nil, err
	}
	var out []netip.Addr
	for _, rr := range in.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(a.A); ok {
			out = append(out, addr.Unmap())
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no A records for %s", host)
	}
	return out, nil
}

// exchange asks each server in turn until one answers. A truncated UDP
// answer is retried over TCP against the same server.
func (r *DNSResolver) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	udp := &dns.Client{Net: "udp", Timeout: r.timeout}
	tcp := &dns.Client{Net: "tcp", Timeout: r.timeout}

	var errs []error
	for _, server := range r.servers {
		in, _, err := udp.ExchangeContext(ctx, m, server)
		if in != nil && in.Truncated {
			in, _, err = tcp.ExchangeContext(ctx, m, server)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", server, err))
			continue
		}

		if in.Rcode != dns.RcodeSuccess {
			return nil, fmt.Errorf("%s %s: %s", dns.TypeToString[qtype], name, dns.RcodeToString[in.Rcode])
		}
		return in, nil
	}
	return nil, fmt.Errorf("%s %s: %w", dns.TypeToString[qtype], name, errors.Join(errs...))
}
