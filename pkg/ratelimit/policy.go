package ratelimit

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Built-in policy names.
const (
	// PolicyAPI is the general API policy and the fallback for unknown names.
	PolicyAPI = "api"

	// PolicyAuth guards login and token endpoints.
	PolicyAuth = "auth"

	// PolicyContentCreate guards post, work and chapter creation.
	PolicyContentCreate = "content_create"

	// PolicySearch guards search endpoints.
	PolicySearch = "search"
)

// Policy is a named fixed-window quota.
type Policy struct {
	Name   string        `yaml:"name"`
	Window time.Duration `yaml:"window"`
	Max    int           `yaml:"max"`
}

// Validate checks that the policy can be enforced.
func (p Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy name cannot be empty")
	}
	if p.Window <= 0 {
		return fmt.Errorf("policy %q: window must be positive, got %s", p.Name, p.Window)
	}
	if p.Max < 0 {
		return fmt.Errorf("policy %q: max must be non-negative, got %d", p.Name, p.Max)
	}
	return nil
}

// PolicyTable maps policy names to policies. It is immutable once handed to a limiter.
type PolicyTable map[string]Policy

// DefaultPolicies returns the built-in policy table.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		PolicyAPI:           {Name: PolicyAPI, Window: 15 * time.Minute, Max: 100},
		PolicyAuth:          {Name: PolicyAuth, Window: 15 * time.Minute, Max: 5},
		PolicyContentCreate: {Name: PolicyContentCreate, Window: 5 * time.Minute, Max: 5},
		PolicySearch:        {Name: PolicySearch, Window: 1 * time.Minute, Max: 30},
	}
}

// Lookup returns the named policy.
func (t PolicyTable) Lookup(name string) (Policy, bool) {
	p, ok := t[name]
	return p, ok
}

// Names returns the policy names in sorted order.
func (t PolicyTable) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every policy and requires the fallback policy to exist.
func (t PolicyTable) Validate() error {
	if _, ok := t[PolicyAPI]; !ok {
		return fmt.Errorf("policy table must define %q", PolicyAPI)
	}
	for name, p := range t {
		if p.Name != name {
			return fmt.Errorf("policy registered as %q has name %q", name, p.Name)
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Merge returns a copy of t with the policies from override replacing or
// extending it.
func (t PolicyTable) Merge(override PolicyTable) PolicyTable {
	out := make(PolicyTable, len(t)+len(override))
	for name, p := range t {
		out[name] = p
	}
	for name, p := range override {
		out[name] = p
	}
	return out
}

type policyFile struct {
	Policies []Policy `yaml:"policies"`
}

// ParsePolicies decodes a YAML policy document of the form:
//
//	policies:
//	  - name: search
//	    window: 1m
//	    max: 60
func ParsePolicies(data []byte) (PolicyTable, error) {
	var doc policyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	table := make(PolicyTable, len(doc.Policies))
	for i, p := range doc.Policies {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policies[%d]: %w", i, err)
		}
		if _, dup := table[p.Name]; dup {
			return nil, fmt.Errorf("policies[%d]: duplicate policy %q", i, p.Name)
		}
		table[p.Name] = p
	}
	return table, nil
}

// LoadPolicyFile reads a YAML policy file and merges it over the defaults.
func LoadPolicyFile(path string) (PolicyTable, error) {
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	overrides, err := ParsePolicies(data)
	if err != nil {
		return nil, err
	}
	return DefaultPolicies().Merge(overrides), nil
}
