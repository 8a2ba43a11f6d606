package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// Source supplies mapping rules, e.g. the SQLite tag_analysis table.
type Source interface {
	List(ctx context.Context) ([]Rule, error)
}

type compiledRule struct {
	tag         string
	description string
	analyses    []Type
}

type table struct {
	byTag map[string][]compiledRule
	size  int
}

// Resolver matches (tag, description) pairs against an immutable rule table.
// The table is swapped atomically by Replace, so Resolve is safe to call from
// any number of goroutines without locking.
type Resolver struct {
	tbl atomic.Pointer[table]
}

// NewResolver builds a resolver over rules. Invalid rules are rejected.
func NewResolver(rules []Rule) (*Resolver, error) {
	r := &Resolver{}
	if err := r.Replace(rules); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace swaps in a new rule table.
func (r *Resolver) Replace(rules []Rule) error {
	t := &table{byTag: make(map[string][]compiledRule)}
	for i, rule := range rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rule[%d]: %w", i, err)
		}
		key := normalize(rule.Tag)
		analyses := make([]Type, 0, len(rule.Analyses))
		for _, a := range rule.Analyses {
			parsed, _ := ParseType(string(a))
			analyses = append(analyses, parsed)
		}
		t.byTag[key] = append(t.byTag[key], compiledRule{
			tag:         key,
			description: normalize(rule.Description),
			analyses:    analyses,
		})
		t.size++
	}
	r.tbl.Store(t)
	return nil
}

// Refresh reloads the table from src. On error the current table is kept.
func (r *Resolver) Refresh(ctx context.Context, src Source) (int, error) {
	rules, err := src.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list mapping rules: %w", err)
	}
	if err := r.Replace(rules); err != nil {
		return 0, err
	}
	return len(rules), nil
}

// Len returns the number of rules in the current table.
func (r *Resolver) Len() int {
	t := r.tbl.Load()
	if t == nil {
		return 0
	}
	return t.size
}

// Resolve returns the analyses whose rules match tagID and description.
// No match yields an empty set.
func (r *Resolver) Resolve(tagID, description string) Set {
	t := r.tbl.Load()
	if t == nil {
		return Set{}
	}

	desc := normalize(description)
	out := Set{}
	for _, rule := range t.byTag[normalize(tagID)] {
		if rule.description != "" && !strings.Contains(desc, rule.description) {
			continue
		}
		for _, a := range rule.analyses {
			out = out.add(a)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
