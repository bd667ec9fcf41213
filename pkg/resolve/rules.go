package resolve

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Rule marks properties whose conflicting edits are safe to settle by
// taking the incoming value. Pattern is a glob matched against the
// lowercased change key.
type Rule struct {
	Name    string `toml:"name" yaml:"name" json:"name"`
	Pattern string `toml:"pattern" yaml:"pattern" json:"pattern"`
	Enabled bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
}

// DefaultRules is the built-in trivial-field table: timestamps, dates,
// comments, descriptions and the cosmetic color/font/style properties.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "timestamp", Pattern: "*timestamp*", Enabled: true},
		{Name: "date", Pattern: "*date*", Enabled: true},
		{Name: "comment", Pattern: "*comment*", Enabled: true},
		{Name: "description", Pattern: "*description*", Enabled: true},
		{Name: "color", Pattern: "color", Enabled: true},
		{Name: "font", Pattern: "font", Enabled: true},
		{Name: "style", Pattern: "style", Enabled: true},
	}
}

type compiledRule struct {
	name    string
	matcher glob.Glob
}

func compileRules(rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		m, err := glob.Compile(strings.ToLower(r.Pattern))
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.Name, err)
		}
		out = append(out, compiledRule{name: r.Name, matcher: m})
	}
	return out, nil
}

// trivialRule returns the first enabled rule matching key.
func trivialRule(rules []compiledRule, key string) (string, bool) {
	lower := strings.ToLower(key)
	for _, r := range rules {
		if r.matcher.Match(lower) {
			return r.name, true
		}
	}
	return "", false
}
