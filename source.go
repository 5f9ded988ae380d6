package dnsmonitor

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/miekg/dns"

	"github.com/jpalmerr/dnsmonitor/internal/poller"
)

// SourceKind identifies how a [Source] finds nodes.
type SourceKind int

const (
	// SourceName monitors the A records of a hostname, or an address literal.
	SourceName SourceKind = iota

	// SourceAuthority monitors every nameserver of a domain.
	SourceAuthority

	// SourceNameList monitors every label listed in a TXT record, qualified
	// with a base domain.
	SourceNameList
)

// String returns "name", "authority" or "name_list".
func (k SourceKind) String() string {
	switch k {
	case SourceAuthority:
		return "authority"
	case SourceNameList:
		return "name_list"
	default:
		return "name"
	}
}

// Source describes where the monitor discovers nodes.
//
// Source is immutable after creation via [Name], [Authority] or [NameList].
// Sources are re-resolved on every discovery pass, so nodes added to the
// zone appear without a restart.
type Source struct {
	kind SourceKind
	name string
	base string
}

// Kind returns how the source is resolved.
func (s Source) Kind() SourceKind {
	return s.kind
}

// Name returns the host, domain or TXT record name, without a trailing dot.
func (s Source) Name() string {
	return s.name
}

// Base returns the domain appended to name list labels. Empty for other
// kinds, and for name lists using the default base.
func (s Source) Base() string {
	return s.base
}

// String returns a human-readable form such as "authority:example.com".
func (s Source) String() string {
	if s.kind == SourceNameList && s.base != "" {
		return fmt.Sprintf("%s:%s,%s", s.kind, s.name, s.base)
	}
	return fmt.Sprintf("%s:%s", s.kind, s.name)
}

func (s Source) target() poller.Target {
	t := poller.Target{Name: s.name, Base: s.base}
	switch s.kind {
	case SourceAuthority:
		t.Kind = poller.TargetAuthority
	case SourceNameList:
		t.Kind = poller.TargetNameList
	default:
		t.Kind = poller.TargetName
	}
	return t
}

// Name creates a [Source] for a single host. host may be an IP address,
// which is monitored as is.
//
// Example:
//
//	src, err := dnsmonitor.Name("ns1.example.com")
func Name(host string) (Source, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return Source{}, errors.New("host cannot be empty")
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return Source{kind: SourceName, name: host}, nil
	}
	name, err := domainName(host)
	if err != nil {
		return Source{}, err
	}
	return Source{kind: SourceName, name: name}, nil
}

// Authority creates a [Source] monitoring every nameserver listed in the NS
// records of domain.
func Authority(domain string) (Source, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return Source{}, errors.New("domain cannot be empty")
	}
	name, err := domainName(domain)
	if err != nil {
		return Source{}, err
	}
	return Source{kind: SourceAuthority, name: name}, nil
}

// NameList creates a [Source] from the TXT record at txtName. Its strings
// are split on whitespace and each label is monitored as <label>.<base>.
// An empty base defaults to txtName without its first label.
//
// Example:
//
//	// _nodes.example.com TXT "fra1 lax1 sin1"
//	src, err := dnsmonitor.NameList("_nodes.example.com", "")
func NameList(txtName, base string) (Source, error) {
	txtName = strings.TrimSpace(txtName)
	if txtName == "" {
		return Source{}, errors.New("TXT record name cannot be empty")
	}
	name, err := domainName(txtName)
	if err != nil {
		return Source{}, err
	}

	base = strings.TrimSpace(base)
	if base != "" {
		if base, err = domainName(base); err != nil {
			return Source{}, err
		}
	} else if !strings.Contains(name, ".") {
		return Source{}, fmt.Errorf("TXT record name %q has no parent domain, base required", name)
	}
	return Source{kind: SourceNameList, name: name, base: base}, nil
}

// domainName validates name and strips the trailing dot.
func domainName(name string) (string, error) {
	if _, ok := dns.IsDomainName(name); !ok {
		return "", fmt.Errorf("invalid domain name %q", name)
	}
	return strings.TrimSuffix(name, "."), nil
}
