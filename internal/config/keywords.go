package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProjectCategory is one entry of the project keyword table.
type ProjectCategory struct {
	Category string
	Keywords []string
}

// ProjectKeywords keeps the categories in the order they were declared,
// because the first category with a matching keyword wins.
// In YAML it is a mapping of category to a list of keywords.
type ProjectKeywords []ProjectCategory

// UnmarshalYAML decodes the mapping while preserving key order.
func (p *ProjectKeywords) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: project_keywords must be a mapping of category to keywords", value.Line)
	}

	out := make(ProjectKeywords, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]

		var category string
		if err := keyNode.Decode(&category); err != nil {
			return err
		}

		var keywords []string
		switch valNode.Kind {
		case yaml.ScalarNode:
			// A single keyword written without a list
			var kw string
			if err := valNode.Decode(&kw); err != nil {
				return err
			}
			keywords = []string{kw}
		default:
			if err := valNode.Decode(&keywords); err != nil {
				return fmt.Errorf("line %d: keywords for %q: %w", valNode.Line, category, err)
			}
		}
		out = append(out, ProjectCategory{Category: category, Keywords: keywords})
	}

	*p = out
	return nil
}

// MarshalYAML encodes the table as an ordered mapping.
func (p ProjectKeywords) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, pc := range p {
		var keywords yaml.Node
		if err := keywords.Encode(pc.Keywords); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: pc.Category},
			&keywords,
		)
	}
	return node, nil
}

// Match returns the first category whose keywords occur in filename,
// compared case-insensitively.
func (p ProjectKeywords) Match(filename string) (string, bool) {
	lowered := strings.ToLower(filename)
	for _, pc := range p {
		for _, kw := range pc.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(kw)) {
				return pc.Category, true
			}
		}
	}
	return "", false
}
