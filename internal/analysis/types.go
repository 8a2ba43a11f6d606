// Package analysis resolves which analysis procedures apply to an inspection,
// based on the inspected tag and the free-text inspection description.
package analysis

import (
	"fmt"
	"strings"
)

// Type identifies one analysis procedure. The set is closed: names outside
// Known() are rejected when mapping rules are built.
type Type string

const (
	Anonymizer         Type = "anonymizer"
	ConstantLevelOiler Type = "constant_level_oiler"
	Fencilla           Type = "fencilla"
	ThermalReading     Type = "thermal_reading"
)

var known = []Type{Anonymizer, ConstantLevelOiler, Fencilla, ThermalReading}

// Known returns every supported analysis type in declaration order.
func Known() []Type {
	out := make([]Type, len(known))
	copy(out, known)
	return out
}

// ParseType accepts the canonical snake_case name, case-insensitively.
func ParseType(s string) (Type, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for _, t := range known {
		if string(t) == norm {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown analysis type %q", s)
}

// Set is an ordered, duplicate-free collection of analysis types.
type Set []Type

// Contains reports whether t is in the set.
func (s Set) Contains(t Type) bool {
	for _, v := range s {
		if v == t {
			return true
		}
	}
	return false
}

// Strings returns the set as plain strings, for logging.
func (s Set) Strings() []string {
	out := make([]string, len(s))
	for i, t := range s {
		out[i] = string(t)
	}
	return out
}

func (s Set) add(t Type) Set {
	if s.Contains(t) {
		return s
	}
	return append(s, t)
}

// Rule maps a tag, optionally narrowed by a description pattern, to the
// analyses that should run for it.
type Rule struct {
	Tag         string `json:"tag" yaml:"tag"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Analyses    []Type `json:"analyses" yaml:"analyses"`
}

// Validate checks the rule is usable by the resolver.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Tag) == "" {
		return fmt.Errorf("tag is required")
	}
	if len(r.Analyses) == 0 {
		return fmt.Errorf("tag %q: at least one analysis is required", r.Tag)
	}
	for _, a := range r.Analyses {
		if _, err := ParseType(string(a)); err != nil {
			return fmt.Errorf("tag %q: %w", r.Tag, err)
		}
	}
	return nil
}
