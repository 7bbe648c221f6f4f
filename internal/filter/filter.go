// Package filter decides which filesystem paths are eligible for indexing.
package filter

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dshills/fsindex/pkg/types"
)

// RuleType identifies which kind of rule excluded a path
type RuleType string

const (
	RuleSubstring RuleType = "partial_path"
	RuleRegexp    RuleType = "regular_expression"
)

// Rule describes a single matching exclusion rule
type Rule struct {
	Type    RuleType
	Pattern string
}

// Ruleset holds the exclusion rules of one run. It is immutable once built.
type Ruleset struct {
	substrings []string
	patterns   []*regexp.Regexp
}

// New compiles the exclusion rules. Regular expressions are matched against
// the start of a path: a rule excludes a path when it matches a prefix of it,
// so `.*\.tmp` excludes "/data/c.tmp" but `\.tmp` does not.
func New(substrings, expressions []string) (*Ruleset, error) {
	rs := &Ruleset{
		substrings: make([]string, 0, len(substrings)),
		patterns:   make([]*regexp.Regexp, 0, len(expressions)),
	}

	for _, s := range substrings {
		if s == "" {
			continue // an empty substring would exclude everything
		}
		rs.substrings = append(rs.substrings, s)
	}

	for _, expr := range expressions {
		re, err := regexp.Compile(`^(?:` + expr + `)`)
		if err != nil {
			return nil, fmt.Errorf("%w: regular expression %q: %v", types.ErrInvalidConfig, expr, err)
		}
		rs.patterns = append(rs.patterns, re)
	}

	return rs, nil
}

// MustNew is like New but panics on an invalid expression. Intended for tests
// and static rule tables.
func MustNew(substrings, expressions []string) *Ruleset {
	rs, err := New(substrings, expressions)
	if err != nil {
		panic(err)
	}
	return rs
}

// ShouldIndex reports whether path is eligible for indexing
func (rs *Ruleset) ShouldIndex(path string) bool {
	_, excluded := rs.Match(path)
	return !excluded
}

// Match returns the first rule excluding path. Substring rules are checked
// before regular expressions.
func (rs *Ruleset) Match(path string) (Rule, bool) {
	if rs == nil {
		return Rule{}, false
	}

	for _, s := range rs.substrings {
		if strings.Contains(path, s) {
			return Rule{Type: RuleSubstring, Pattern: s}, true
		}
	}

	for _, re := range rs.patterns {
		if re.MatchString(path) {
			return Rule{Type: RuleRegexp, Pattern: unanchor(re.String())}, true
		}
	}

	return Rule{}, false
}

// Len returns the total number of rules
func (rs *Ruleset) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.substrings) + len(rs.patterns)
}

// Within reports whether path equals or lies below one of roots
func Within(path string, roots []string) bool {
	clean := filepath.Clean(path)
	for _, root := range roots {
		root = filepath.Clean(root)
		if clean == root {
			return true
		}
		if strings.HasPrefix(clean, strings.TrimSuffix(root, string(filepath.Separator))+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func unanchor(expr string) string {
	return strings.TrimSuffix(strings.TrimPrefix(expr, "^(?:"), ")")
}
