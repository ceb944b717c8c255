package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Queries keeps the configured queries in file order. A plain map would lose
// the order the sheets are meant to appear in.
type Queries []Query

// UnmarshalYAML decodes the `queries:` mapping node entry by entry.
func (q *Queries) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: queries must be a mapping of name to {name, query}", node.Line)
	}
	out := make(Queries, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		var query Query
		if err := valueNode.Decode(&query); err != nil {
			return fmt.Errorf("query %q: %w", keyNode.Value, err)
		}
		query.Key = keyNode.Value
		out = append(out, query)
	}
	*q = out
	return nil
}

// MarshalYAML writes the queries back as an ordered mapping.
func (q Queries) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, query := range q {
		var value yaml.Node
		if err := value.Encode(query); err != nil {
			return nil, fmt.Errorf("query %q: %w", query.Key, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: query.Key},
			&value,
		)
	}
	return node, nil
}
