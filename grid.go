package dnsmonitor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// NameGrid creates one [Name] source per combination of dimension values,
// rendering hostTemplate with text/template syntax. Fleets with systematic
// hostnames can be listed without a TXT name list.
//
// Dimension keys are expanded in sorted order and values keep their order.
// A key used in the template but missing from dims is an error. Duplicate
// hostnames are returned once.
//
// Example:
//
//	sources, err := dnsmonitor.NameGrid("{{.site}}{{.n}}.example.com", map[string][]string{
//	    "site": {"fra", "lax"},
//	    "n":    {"1", "2"},
//	})
//	// fra1, fra2, lax1, lax2 .example.com
func NameGrid(hostTemplate string, dims map[string][]string) ([]Source, error) {
	if strings.TrimSpace(hostTemplate) == "" {
		return nil, errors.New("host template cannot be empty")
	}
	if len(dims) == 0 {
		return nil, errors.New("at least one dimension required")
	}
	for k, values := range dims {
		if strings.TrimSpace(k) == "" {
			return nil, errors.New("dimension key cannot be empty")
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("dimension %q has no values", k)
		}
		for _, v := range values {
			if strings.ContainsAny(v, " \t.") || v == "" {
				return nil, fmt.Errorf("dimension %q value %q is not a single DNS label", k, v)
			}
		}
	}

	tmpl, err := template.New("host").Option("missingkey=error").Parse(hostTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid host template: %w", err)
	}

	combos := cartesianProduct(dims)
	sources := make([]Source, 0, len(combos))
	seen := make(map[string]bool, len(combos))
	for _, combo := range combos {
		var buf strings.Builder
		if err := tmpl.Execute(&buf, combo); err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		src, err := Name(buf.String())
		if err != nil {
			return nil, fmt.Errorf("grid host %q: %w", buf.String(), err)
		}
		if seen[src.name] {
			continue
		}
		seen[src.name] = true
		sources = append(sources, src)
	}
	return sources, nil
}

// cartesianProduct returns every combination of dimension values. Keys are
// iterated in sorted order, the last key varying fastest.
//
//	{"x": ["a","b"], "y": ["1","2"]} -> a1, a2, b1, b2
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}

	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
		if len(dims[k]) == 0 {
			return nil
		}
	}
	sort.Strings(keys)

	result := []map[string]string{{}}
	for _, k := range keys {
		next := make([]map[string]string, 0, len(result)*len(dims[k]))
		for _, prefix := range result {
			for _, v := range dims[k] {
				combo := make(map[string]string, len(prefix)+1)
				for pk, pv := range prefix {
					combo[pk] = pv
				}
				combo[k] = v
				next = append(next, combo)
			}
		}
		result = next
	}
	return result
}
