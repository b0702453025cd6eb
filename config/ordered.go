package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Scenarios keeps the scenarios in file order.
type Scenarios []Scenario

// UnmarshalYAML decodes a mapping of scenario name to settings.
func (s *Scenarios) UnmarshalYAML(node *yaml.Node) error {
	out, err := decodeOrdered(node, func(name string) Scenario {
		return Scenario{Name: name}
	})
	if err != nil {
		return fmt.Errorf("scenarios: %w", err)
	}
	*s = out
	return nil
}

// Configurators keeps the configurators in file order.
type Configurators []Configurator

// UnmarshalYAML decodes a mapping of configurator name to settings. Kind
// defaults to the name, n_samples to 1.
func (c *Configurators) UnmarshalYAML(node *yaml.Node) error {
	out, err := decodeOrdered(node, func(name string) Configurator {
		return Configurator{Name: name, Kind: name, NSamples: 1}
	})
	if err != nil {
		return fmt.Errorf("configurators: %w", err)
	}
	*c = out
	return nil
}

// decodeOrdered walks a mapping node pair by pair. Every value is decoded
// over the entry newEntry returns for its key; empty values keep it as is.
func decodeOrdered[T any](node *yaml.Node, newEntry func(name string) T) ([]T, error) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping keyed by name", node.Line)
	}

	seen := make(map[string]bool, len(node.Content)/2)
	out := make([]T, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		name := key.Value
		if seen[name] {
			return nil, fmt.Errorf("line %d: duplicate entry %q", key.Line, name)
		}
		seen[name] = true

		entry := newEntry(name)
		if !(value.Kind == yaml.ScalarNode && value.Tag == "!!null") {
			if err := value.Decode(&entry); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}
