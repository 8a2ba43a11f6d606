package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

// secretKeys are YAML keys whose values never leave the process unmasked.
var secretKeys = map[string]bool{
	"api_key": true,
	"token":   true,
	"secret":  true,
	"dsn":     true,
}

// GetPath reads a dot-separated path such as "workflow.base_url" or
// "analysis.rules.0.tag" from the resolved configuration. Secrets are masked.
func (c *Config) GetPath(path string) (any, error) {
	tree, err := c.redactedTree()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return tree, nil
	}

	var node any = tree
	for i, part := range strings.Split(path, ".") {
		switch n := node.(type) {
		case map[string]any:
			next, ok := n[part]
			if !ok {
				return nil, fmt.Errorf("path %q: key %q not found", path, part)
			}
			node = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(n) {
				return nil, fmt.Errorf("path %q: index %q out of range", path, part)
			}
			node = n[idx]
		default:
			return nil, fmt.Errorf("path %q: %q is a scalar", path, strings.Join(strings.Split(path, ".")[:i], "."))
		}
	}
	return node, nil
}

// Redacted returns the configuration as a generic tree with secrets masked.
func (c *Config) Redacted() (map[string]any, error) {
	return c.redactedTree()
}

func (c *Config) redactedTree() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	redact(tree)
	return tree, nil
}

func redact(node any) {
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			if s, ok := v.(string); ok && secretKeys[k] && s != "" {
				n[k] = redacted
				continue
			}
			redact(v)
		}
	case []any:
		for _, v := range n {
			redact(v)
		}
	}
}
