package dnsmonitor

import (
	"testing"

	"github.com/jpalmerr/dnsmonitor/internal/poller"
)

func TestName_Valid(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"hostname", "ns1.example.com", "ns1.example.com"},
		{"trailing dot", "ns1.example.com.", "ns1.example.com"},
		{"ipv4 literal", "192.0.2.1", "192.0.2.1"},
		{"ipv6 literal", "2001:db8::1", "2001:db8::1"},
		{"surrounding space", " ns1.example.com ", "ns1.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Name(tt.host)
			if err != nil {
				t.Fatalf("Name() error = %v", err)
			}
			if src.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", src.Name(), tt.want)
			}
			if src.Kind() != SourceName {
				t.Errorf("Kind() = %v, want %v", src.Kind(), SourceName)
			}
		})
	}
}

func TestSources_Invalid(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (Source, error)
	}{
		{"empty host", func() (Source, error) { return Name("") }},
		{"bad host", func() (Source, error) { return Name("ns1..example.com") }},
		{"empty domain", func() (Source, error) { return Authority("  ") }},
		{"empty txt name", func() (Source, error) { return NameList("", "example.com") }},
		{"bad base", func() (Source, error) { return NameList("_nodes.example.com", "a..b") }},
		{"no parent for default base", func() (Source, error) { return NameList("nodes", "") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.fn(); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNameList_Base(t *testing.T) {
	src, err := NameList("_nodes.example.com.", "pool.example.net.")
	if err != nil {
		t.Fatalf("NameList() error = %v", err)
	}
	if src.Name() != "_nodes.example.com" {
		t.Errorf("Name() = %q", src.Name())
	}
	if src.Base() != "pool.example.net" {
		t.Errorf("Base() = %q", src.Base())
	}
	if got := src.String(); got != "name_list:_nodes.example.com,pool.example.net" {
		t.Errorf("String() = %q", got)
	}

	src, err = NameList("_nodes.example.com", "")
	if err != nil {
		t.Fatalf("NameList() error = %v", err)
	}
	if src.Base() != "" {
		t.Errorf("Base() = %q, want empty", src.Base())
	}
}

func TestSource_Target(t *testing.T) {
	name, _ := Name("ns1.example.com")
	auth, _ := Authority("example.com")
	list, _ := NameList("_nodes.example.com", "example.net")

	tests := []struct {
		src  Source
		want poller.Target
	}{
		{name, poller.Target{Kind: poller.TargetName, Name: "ns1.example.com"}},
		{auth, poller.Target{Kind: poller.TargetAuthority, Name: "example.com"}},
		{list, poller.Target{Kind: poller.TargetNameList, Name: "_nodes.example.com", Base: "example.net"}},
	}

	for _, tt := range tests {
		t.Run(tt.src.String(), func(t *testing.T) {
			if got := tt.src.target(); got != tt.want {
				t.Errorf("target() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSourceKind_String(t *testing.T) {
	if SourceName.String() != "name" || SourceAuthority.String() != "authority" || SourceNameList.String() != "name_list" {
		t.Error("unexpected SourceKind strings")
	}
}
