// Package config provides YAML configuration parsing for dnsmonitor.
//
// This package enables running dnsmonitor as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 8080
//	poll_interval: 3s
//	summary_exclude: [192.0.2.53]
//
//	sources:
//	  authorities: [example.com]
//	  name_lists:
//	    - _nodes.example.com,example.com
//	  names: [ns1.example.net]
//	  grids:
//	    - template: "{{.site}}{{.n}}.example.org"
//	      dimensions:
//	        site: [fra, lax]
//	        n: ["1", "2"]
//
//	nats:
//	  url: ${NATS_URL:-}
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// minPollInterval keeps a typo from flooding the fleet with status queries.
const minPollInterval = 1 * time.Second

const (
	defaultPort         = 8080
	defaultPollInterval = 3 * time.Second
)

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP API port. Defaults to 8080.
	Port int `yaml:"port"`

	// PollInterval is the per-node poll period. Defaults to 3s.
	PollInterval Duration `yaml:"poll_interval"`

	// SanitizeInterval is the stale sweep period. Defaults to 2s.
	SanitizeInterval Duration `yaml:"sanitize_interval"`

	// RediscoverInterval is how often sources are resolved again. Unset
	// selects 20s; 0s disables rediscovery.
	RediscoverInterval *Duration `yaml:"rediscover_interval"`

	// PublishInterval is how often snapshots are published. Defaults to 1s.
	PublishInterval Duration `yaml:"publish_interval"`

	// EvictMissing removes nodes a clean discovery pass no longer finds.
	EvictMissing bool `yaml:"evict_missing"`

	// Resolvers are the recursive servers used for discovery. Defaults to
	// /etc/resolv.conf.
	Resolvers []string `yaml:"resolvers"`

	// SummaryExclude lists addresses left out of the summary QPS.
	SummaryExclude []string `yaml:"summary_exclude"`

	Status      StatusConfig      `yaml:"status"`
	PushChannel PushChannelConfig `yaml:"push_channel"`
	Sources     SourcesConfig     `yaml:"sources"`
	NATS        NATSConfig        `yaml:"nats"`
}

// StatusConfig locates the TXT status record on each node.
type StatusConfig struct {
	// Name defaults to "_status.pgeodns".
	Name string `yaml:"name"`

	// Port defaults to 53.
	Port int `yaml:"port"`
}

// PushChannelConfig controls websocket push channels.
type PushChannelConfig struct {
	// Enabled defaults to true.
	Enabled *bool `yaml:"enabled"`

	Port   int      `yaml:"port"`
	Path   string   `yaml:"path"`
	Origin string   `yaml:"origin"`
	Retry  Duration `yaml:"retry"`
}

// UnmarshalYAML accepts either a mapping or a bare boolean
// ("push_channel: false").
func (p *PushChannelConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var enabled bool
		if err := node.Decode(&enabled); err != nil {
			return fmt.Errorf("push_channel must be a boolean or object: %w", err)
		}
		p.Enabled = &enabled
		return nil
	}

	// alias drops the method set
	type plain PushChannelConfig
	return node.Decode((*plain)(p))
}

// IsEnabled reports whether push channels are on.
func (p PushChannelConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// SourcesConfig lists where nodes are discovered. All fields support
// environment variable substitution.
type SourcesConfig struct {
	// Authorities are domains whose nameservers are monitored.
	Authorities []string `yaml:"authorities"`

	// NameLists are TXT records listing node labels.
	NameLists []NameListConfig `yaml:"name_lists"`

	// Names are hostnames or address literals.
	Names []string `yaml:"names"`

	// Grids expand a hostname template via cartesian product.
	Grids []GridConfig `yaml:"grids"`
}

// NameListConfig is a TXT name list source.
//
// It supports two formats in YAML:
//
// Shorthand string "txt[,base]":
//
//	- _nodes.example.com,example.com
//
// Structured object:
//
//	- txt: _nodes.example.com
//	  base: example.com
type NameListConfig struct {
	TXT  string
	Base string
}

// GridConfig generates name sources from a hostname template.
//
// With dimensions {site: [fra, lax], n: ["1", "2"]} and template
// "{{.site}}{{.n}}.example.com" the grid yields four hosts.
type GridConfig struct {
	Template   string              `yaml:"template"`
	Dimensions map[string][]string `yaml:"dimensions"`
}

// NATSConfig enables snapshot publishing.
type NATSConfig struct {
	// URL of the NATS server. Empty disables publishing.
	URL string `yaml:"url"`

	// Subject defaults to "dnsmonitor.snapshot".
	Subject string `yaml:"subject"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for NameListConfig.
func (n *NameListConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		txt, base, _ := strings.Cut(s, ",")
		n.TXT = strings.TrimSpace(txt)
		n.Base = strings.TrimSpace(base)
		return nil

	case yaml.MappingNode:
		// temporary struct to avoid infinite recursion
		var raw struct {
			TXT  string `yaml:"txt"`
			Base string `yaml:"base"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		n.TXT = raw.TXT
		n.Base = raw.Base
		return nil
	}

	return fmt.Errorf("name list must be a string or object, got %v", node.Kind)
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
// Group 1: variable name, group 2: ":-default" if present, group 3: default.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// A .env file in the working directory, if present, is loaded into the
// environment first; variables already set are not overridden.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in sources, resolvers, summary_exclude
// and nats. Defaults are applied for Port (8080) and PollInterval (3s).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(defaultPollInterval)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.SanitizeInterval < 0 {
		return fmt.Errorf("sanitize_interval cannot be negative, got %s", c.SanitizeInterval.Duration())
	}
	if c.RediscoverInterval != nil && *c.RediscoverInterval < 0 {
		return fmt.Errorf("rediscover_interval cannot be negative, got %s", c.RediscoverInterval.Duration())
	}
	if c.PublishInterval < 0 {
		return fmt.Errorf("publish_interval cannot be negative, got %s", c.PublishInterval.Duration())
	}

	if err := expandAll(c.Resolvers, "resolvers"); err != nil {
		return err
	}

	if err := expandAll(c.SummaryExclude, "summary_exclude"); err != nil {
		return err
	}
	for i, a := range c.SummaryExclude {
		if _, err := netip.ParseAddr(strings.TrimSpace(a)); err != nil {
			return fmt.Errorf("summary_exclude[%d]: invalid address %q", i, a)
		}
	}

	if c.Status.Port < 0 || c.Status.Port > 65535 {
		return fmt.Errorf("status.port must be between 1 and 65535, got %d", c.Status.Port)
	}

	pc := c.PushChannel
	if pc.Port < 0 || pc.Port > 65535 {
		return fmt.Errorf("push_channel.port must be between 1 and 65535, got %d", pc.Port)
	}
	if pc.Path != "" && !strings.HasPrefix(pc.Path, "/") {
		return fmt.Errorf("push_channel.path must start with /, got %q", pc.Path)
	}
	if pc.Retry < 0 {
		return fmt.Errorf("push_channel.retry cannot be negative, got %s", pc.Retry.Duration())
	}

	if err := c.Sources.expandAndValidate(); err != nil {
		return err
	}

	var err error
	if c.NATS.URL, err = expandEnvVars(c.NATS.URL); err != nil {
		return fmt.Errorf("nats.url: %w", err)
	}
	if c.NATS.Subject, err = expandEnvVars(c.NATS.Subject); err != nil {
		return fmt.Errorf("nats.subject: %w", err)
	}
	if c.NATS.Subject != "" && strings.ContainsAny(c.NATS.Subject, " \t*>") {
		return fmt.Errorf("nats.subject must be a literal subject, got %q", c.NATS.Subject)
	}

	return nil
}

func (s *SourcesConfig) expandAndValidate() error {
	if err := expandAll(s.Authorities, "sources.authorities"); err != nil {
		return err
	}
	for i, a := range s.Authorities {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("sources.authorities[%d]: domain is required", i)
		}
	}

	if err := expandAll(s.Names, "sources.names"); err != nil {
		return err
	}
	for i, n := range s.Names {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("sources.names[%d]: name is required", i)
		}
	}

	for i := range s.NameLists {
		nl := &s.NameLists[i]
		var err error
		if nl.TXT, err = expandEnvVars(nl.TXT); err != nil {
			return fmt.Errorf("sources.name_lists[%d]: txt: %w", i, err)
		}
		if nl.Base, err = expandEnvVars(nl.Base); err != nil {
			return fmt.Errorf("sources.name_lists[%d] (%s): base: %w", i, nl.TXT, err)
		}
		if strings.TrimSpace(nl.TXT) == "" {
			return fmt.Errorf("sources.name_lists[%d]: txt is required", i)
		}
	}

	for i := range s.Grids {
		g := &s.Grids[i]

		if g.Template == "" {
			return fmt.Errorf("sources.grids[%d]: template is required", i)
		}
		expanded, err := expandEnvVars(g.Template)
		if err != nil {
			return fmt.Errorf("sources.grids[%d]: template: %w", i, err)
		}
		g.Template = expanded

		// fail fast before the SDK executes it
		if _, err := template.New("").Parse(g.Template); err != nil {
			return fmt.Errorf("sources.grids[%d]: invalid template: %w", i, err)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("sources.grids[%d] (%s): at least one dimension is required", i, g.Template)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("sources.grids[%d] (%s): dimension %q has no values", i, g.Template, dimName)
			}
			seen := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := seen[v]; exists {
					return fmt.Errorf("sources.grids[%d] (%s): dimension %q has duplicate value %q", i, g.Template, dimName, v)
				}
				seen[v] = struct{}{}
			}
		}
	}

	if len(s.Authorities) == 0 && len(s.NameLists) == 0 && len(s.Names) == 0 && len(s.Grids) == 0 {
		return errors.New("at least one source must be defined")
	}
	return nil
}

// expandAll expands environment variables in every element of values.
func expandAll(values []string, field string) error {
	for i, v := range values {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		values[i] = expanded
	}
	return nil
}
