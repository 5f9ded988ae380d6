package poller

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/jpalmerr/dnsmonitor/internal/node"
)

var errNoResolver = errors.New("no resolver configured")

// ResolutionError is returned when a discovery lookup fails. The name is
// skipped; nodes registered earlier are unaffected.
type ResolutionError struct {
	// Type is the record type looked up: "NS", "TXT" or "A".
	Type string
	Name string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s %s: %v", e.Type, e.Name, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// TargetKind selects how a [Target] is resolved into nodes.
type TargetKind int

const (
	// TargetName is a hostname or address literal.
	TargetName TargetKind = iota
	// TargetAuthority is a domain whose nameservers are the nodes.
	TargetAuthority
	// TargetNameList is a TXT record listing node labels under a base domain.
	TargetNameList
)

func (k TargetKind) String() string {
	switch k {
	case TargetAuthority:
		return "authority"
	case TargetNameList:
		return "name_list"
	default:
		return "name"
	}
}

// Target is one discovery source.
type Target struct {
	Kind TargetKind
	Name string

	// Base is the domain appended to TargetNameList labels.
	Base string
}

// Discover runs one discovery pass over targets. Failing targets are logged
// and skipped; their errors are joined into the result. When eviction is
// enabled and the pass had no errors, nodes the pass did not sight are
// removed.
func (e *Engine) Discover(ctx context.Context, targets []Target) error {
	if !e.running() {
		return ErrNotRunning
	}
	pass := e.pass.Add(1)

	var errs []error
	for _, t := range targets {
		var err error
		switch t.Kind {
		case TargetAuthority:
			err = e.registerByAuthority(ctx, t.Name, pass)
		case TargetNameList:
			err = e.registerByNameList(ctx, t.Name, t.Base, pass)
		default:
			err = e.registerByName(ctx, t.Name, pass)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, ErrNotRunning) || ctx.Err() != nil {
			return err
		}
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		if e.cfg.EvictMissing {
			e.logger.Warn("discovery pass incomplete, skipping eviction", "pass", pass)
		}
		return err
	}
	if e.cfg.EvictMissing {
		return e.submit(ctx, pruneEvent{pass: pass})
	}
	return nil
}

// RegisterByName monitors host. An address literal is registered directly,
// otherwise every A record of host becomes a node named host.
func (e *Engine) RegisterByName(ctx context.Context, host string) error {
	return e.registerByName(ctx, host, e.pass.Load())
}

// RegisterByAuthority monitors every nameserver of domain.
func (e *Engine) RegisterByAuthority(ctx context.Context, domain string) error {
	return e.registerByAuthority(ctx, domain, e.pass.Load())
}

// RegisterByNameList monitors <label>.<baseDomain> for every label listed in
// the TXT record at txtName. An empty baseDomain defaults to txtName without
// its first label.
func (e *Engine) RegisterByNameList(ctx context.Context, txtName, baseDomain string) error {
	return e.registerByNameList(ctx, txtName, baseDomain, e.pass.Load())
}

func (e *Engine) registerByName(ctx context.Context, host string, pass uint64) error {
	if !e.running() {
		return ErrNotRunning
	}
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")

	if addr, err := netip.ParseAddr(host); err == nil {
		return e.submit(ctx, discoveredEvent{addr: addr.Unmap(), pass: pass})
	}

	addrs, err := e.lookupAddrs(ctx, host)
	if err != nil {
		return e.resolutionFailed("A", host, err)
	}
	for _, addr := range addrs {
		if err := e.submit(ctx, discoveredEvent{addr: addr.Unmap(), name: host, pass: pass}); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) registerByAuthority(ctx context.Context, domain string, pass uint64) error {
	if !e.running() {
		return ErrNotRunning
	}
	if e.resolver == nil {
		return e.resolutionFailed("NS", domain, errNoResolver)
	}

	hosts, err := e.resolver.LookupNS(ctx, domain)
	if err != nil {
		return e.resolutionFailed("NS", domain, err)
	}
	e.logger.Debug("resolved authority", "name", domain, "hosts", len(hosts))

	var errs []error
	for _, host := range hosts {
		if err := e.registerByName(ctx, host, pass); err != nil {
			if errors.Is(err, ErrNotRunning) || ctx.Err() != nil {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) registerByNameList(ctx context.Context, txtName, baseDomain string, pass uint64) error {
	if !e.running() {
		return ErrNotRunning
	}
	if e.resolver == nil {
		return e.resolutionFailed("TXT", txtName, errNoResolver)
	}

	if baseDomain == "" {
		if i := strings.IndexByte(txtName, '.'); i >= 0 {
			baseDomain = txtName[i+1:]
		}
	}
	baseDomain = strings.Trim(baseDomain, ".")

	txts, err := e.resolver.LookupTXT(ctx, txtName)
	if err != nil {
		return e.resolutionFailed("TXT", txtName, err)
	}

	var errs []error
	for _, txt := range txts {
		for _, label := range strings.Fields(txt) {
			host := label
			if baseDomain != "" {
				host = label + "." + baseDomain
			}
			if err := e.registerByName(ctx, host, pass); err != nil {
				if errors.Is(err, ErrNotRunning) || ctx.Err() != nil {
					return err
				}
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) lookupAddrs(ctx context.Context, host string) ([]netip.Addr, error) {
	if e.resolver == nil {
		return nil, errNoResolver
	}
	return e.resolver.LookupAddrs(ctx, host)
}

// resolutionFailed logs and wraps a lookup failure. Cancellation is passed
// through untouched.
func (e *Engine) resolutionFailed(qtype, name string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	e.logger.Warn("resolution failed", "type", qtype, "name", name, "error", err)
	return &ResolutionError{Type: qtype, Name: name, Err: err}
}

// onDiscovered registers a sighted address. A new node gets its periodic
// trigger and an immediate first tick.
func (e *Engine) onDiscovered(ev discoveredEvent) {
	rec, created := e.registry.Add(ev.addr)
	if ev.name != "" {
		rec.AddName(ev.name)
	}
	if ev.pass > e.lastSeen[ev.addr] {
		e.lastSeen[ev.addr] = ev.pass
	}
	if !created {
		return
	}

	e.logger.Info("node registered", "address", ev.addr, "name", ev.name)
	e.startTicker(ev.addr)
	e.onTick(ev.addr)
}

// prune evicts every node last sighted before pass.
func (e *Engine) prune(pass uint64) {
	var evict []netip.Addr
	e.registry.Each(func(rec *node.Record) {
		if e.lastSeen[rec.Address] < pass {
			evict = append(evict, rec.Address)
		}
	})

	for _, addr := range evict {
		e.stopTicker(addr)
		e.closeChannel(addr)
		delete(e.polls, addr)
		delete(e.lastSeen, addr)
		e.registry.Remove(addr)
		e.logger.Info("node evicted", "address", addr, "pass", pass)
	}
}
