package config

import (
	"fmt"

	"github.com/jpalmerr/dnsmonitor"
)

// BuildSources converts the sources section into SDK Source values.
//
// Authorities come first, then name lists, names and grid hosts, each in
// file order. Grid dimensions are expanded via cartesian product.
func BuildSources(cfg *Config) ([]dnsmonitor.Source, error) {
	var sources []dnsmonitor.Source
	sc := cfg.Sources

	for i, d := range sc.Authorities {
		src, err := dnsmonitor.Authority(d)
		if err != nil {
			return nil, fmt.Errorf("sources.authorities[%d]: %w", i, err)
		}
		sources = append(sources, src)
	}

	for i, nl := range sc.NameLists {
		src, err := dnsmonitor.NameList(nl.TXT, nl.Base)
		if err != nil {
			return nil, fmt.Errorf("sources.name_lists[%d] (%s): %w", i, nl.TXT, err)
		}
		sources = append(sources, src)
	}

	for i, n := range sc.Names {
		src, err := dnsmonitor.Name(n)
		if err != nil {
			return nil, fmt.Errorf("sources.names[%d]: %w", i, err)
		}
		sources = append(sources, src)
	}

	for i, gc := range sc.Grids {
		gridSources, err := dnsmonitor.NameGrid(gc.Template, gc.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("sources.grids[%d] (%s): %w", i, gc.Template, err)
		}
		sources = append(sources, gridSources...)
	}

	return dedupe(sources), nil
}

// dedupe drops repeated sources, keeping the first occurrence. A grid host
// may also be listed under names.
func dedupe(sources []dnsmonitor.Source) []dnsmonitor.Source {
	seen := make(map[dnsmonitor.Source]bool, len(sources))
	out := sources[:0]
	for _, s := range sources {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// BuildOptions converts parsed configuration into SDK options. The caller
// appends its own logger and callbacks.
func BuildOptions(cfg *Config) ([]dnsmonitor.Option, error) {
	sources, err := BuildSources(cfg)
	if err != nil {
		return nil, err
	}

	opts := []dnsmonitor.Option{
		dnsmonitor.WithSources(sources...),
		dnsmonitor.WithPort(cfg.Port),
		dnsmonitor.WithInterval(cfg.PollInterval.Duration()),
		dnsmonitor.WithEvictMissing(cfg.EvictMissing),
		dnsmonitor.WithPushChannel(cfg.PushChannel.IsEnabled()),
		dnsmonitor.WithStatusRecord(cfg.Status.Name, cfg.Status.Port),
		dnsmonitor.WithPushChannelEndpoint(cfg.PushChannel.Port, cfg.PushChannel.Path, cfg.PushChannel.Origin),
	}

	if cfg.SanitizeInterval != 0 {
		opts = append(opts, dnsmonitor.WithSanitizeInterval(cfg.SanitizeInterval.Duration()))
	}
	if cfg.RediscoverInterval != nil {
		opts = append(opts, dnsmonitor.WithRediscoverInterval(cfg.RediscoverInterval.Duration()))
	}
	if cfg.PublishInterval != 0 {
		opts = append(opts, dnsmonitor.WithPublishInterval(cfg.PublishInterval.Duration()))
	}
	if cfg.PushChannel.Retry != 0 {
		opts = append(opts, dnsmonitor.WithChannelRetry(cfg.PushChannel.Retry.Duration()))
	}
	if len(cfg.Resolvers) > 0 {
		opts = append(opts, dnsmonitor.WithResolvers(cfg.Resolvers...))
	}
	if len(cfg.SummaryExclude) > 0 {
		opts = append(opts, dnsmonitor.WithSummaryExclude(cfg.SummaryExclude...))
	}
	if cfg.NATS.URL != "" {
		opts = append(opts, dnsmonitor.WithNATS(cfg.NATS.URL, cfg.NATS.Subject))
	}

	return opts, nil
}
