package types

import "strings"

// Rule routes every file whose name contains one of Patterns into Target.
// Rules are evaluated in configuration order and the first match wins.
type Rule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
	Target   string   `yaml:"target"`
}

// Matches reports whether any pattern is a case-insensitive substring of filename.
// A rule without patterns never matches, and empty patterns are skipped.
func (r Rule) Matches(filename string) bool {
	lowered := strings.ToLower(filename)
	for _, pattern := range r.Patterns {
		if pattern == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
