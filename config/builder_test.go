package config

import (
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/dnsmonitor"
)

func sourceStrings(sources []dnsmonitor.Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.String()
	}
	return out
}

func TestBuildSources_AllKinds(t *testing.T) {
	cfg := &Config{
		Sources: SourcesConfig{
			Authorities: []string{"example.com."},
			NameLists: []NameListConfig{
				{TXT: "_nodes.example.com"},
				{TXT: "_nodes.example.net", Base: "example.net"},
			},
			Names: []string{"ns1.example.org", "192.0.2.9"},
		},
	}

	sources, err := BuildSources(cfg)
	if err != nil {
		t.Fatalf("BuildSources() error = %v", err)
	}

	want := []string{
		"authority:example.com",
		"name_list:_nodes.example.com",
		"name_list:_nodes.example.net,example.net",
		"name:ns1.example.org",
		"name:192.0.2.9",
	}
	got := sourceStrings(sources)
	if len(got) != len(want) {
		t.Fatalf("BuildSources() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sources[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuildSources_Grid(t *testing.T) {
	cfg := &Config{
		Sources: SourcesConfig{
			Grids: []GridConfig{{
				Template:   "{{.site}}{{.n}}.example.com",
				Dimensions: map[string][]string{"site": {"fra", "lax"}, "n": {"1"}},
			}},
		},
	}

	sources, err := BuildSources(cfg)
	if err != nil {
		t.Fatalf("BuildSources() error = %v", err)
	}

	got := sourceStrings(sources)
	want := []string{"name:fra1.example.com", "name:lax1.example.com"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("BuildSources() = %v, want %v", got, want)
	}
}

func TestBuildSources_DeduplicatesAcrossSections(t *testing.T) {
	cfg := &Config{
		Sources: SourcesConfig{
			Names: []string{"fra1.example.com", "fra1.example.com."},
			Grids: []GridConfig{{
				Template:   "{{.site}}1.example.com",
				Dimensions: map[string][]string{"site": {"fra", "lax"}},
			}},
		},
	}

	sources, err := BuildSources(cfg)
	if err != nil {
		t.Fatalf("BuildSources() error = %v", err)
	}

	got := sourceStrings(sources)
	if len(got) != 2 || got[0] != "name:fra1.example.com" || got[1] != "name:lax1.example.com" {
		t.Errorf("BuildSources() = %v, want fra1 then lax1 once each", got)
	}
}

func TestBuildSources_Errors(t *testing.T) {
	tests := []struct {
		name    string
		sources SourcesConfig
		wantErr string
	}{
		{
			name:    "invalid authority",
			sources: SourcesConfig{Authorities: []string{"bad..example"}},
			wantErr: "sources.authorities[0]",
		},
		{
			name:    "name list without parent",
			sources: SourcesConfig{NameLists: []NameListConfig{{TXT: "_nodes"}}},
			wantErr: "sources.name_lists[0] (_nodes): TXT record name \"_nodes\" has no parent domain",
		},
		{
			name:    "invalid name",
			sources: SourcesConfig{Names: []string{"ns1.example.com", "bad..example"}},
			wantErr: "sources.names[1]",
		},
		{
			name: "grid missing key",
			sources: SourcesConfig{Grids: []GridConfig{{
				Template:   "{{.region}}.example.com",
				Dimensions: map[string][]string{"site": {"fra"}},
			}}},
			wantErr: "template execution failed",
		},
		{
			name: "grid dotted value",
			sources: SourcesConfig{Grids: []GridConfig{{
				Template:   "{{.site}}.example.com",
				Dimensions: map[string][]string{"site": {"fra.eu"}},
			}}},
			wantErr: "single DNS label",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildSources(&Config{Sources: tt.sources})
			if err == nil {
				t.Fatal("BuildSources() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildOptions_ParsedConfig(t *testing.T) {
	yaml := `
port: 9191
poll_interval: 4s
rediscover_interval: 0s
summary_exclude: [192.0.2.100]
push_channel:
  enabled: false
sources:
  authorities: [example.com]
  names: [192.0.2.9]
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	m, err := dnsmonitor.New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m.Port() != 9191 {
		t.Errorf("Port() = %d, want 9191", m.Port())
	}
	if m.Interval() != 4*time.Second {
		t.Errorf("Interval() = %v, want 4s", m.Interval())
	}
	if got := sourceStrings(m.Sources()); len(got) != 2 || got[0] != "authority:example.com" {
		t.Errorf("Sources() = %v", got)
	}
}

func TestBuildOptions_InvalidNATSURL(t *testing.T) {
	cfg := &Config{
		Port:         8080,
		PollInterval: Duration(3 * time.Second),
		Sources:      SourcesConfig{Names: []string{"ns1.example.com"}},
		NATS:         NATSConfig{URL: " "},
	}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}
	if _, err := dnsmonitor.New(opts...); err == nil {
		t.Fatal("New() expected error for blank NATS url")
	}
}

func TestBuildOptions_SourceError(t *testing.T) {
	cfg := &Config{
		Port:         8080,
		PollInterval: Duration(3 * time.Second),
		Sources:      SourcesConfig{Names: []string{"bad..example"}},
	}

	if _, err := BuildOptions(cfg); err == nil {
		t.Fatal("BuildOptions() expected error, got nil")
	}
}
