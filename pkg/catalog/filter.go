// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// matcher decides whether a catalog string (entry name, URL or section
// path) is selected by one user pattern.
type matcher interface {
	matches(s string) bool
	pattern() string
}

// globMatcher matches case-insensitively with filepath.Match, trying
// the base name first so "ubuntu*.iso" works on full URLs too.
type globMatcher struct {
	glob        string
	patternText string
}

func (g *globMatcher) matches(s string) bool {
	s = strings.ToLower(s)
	if ok, _ := filepath.Match(g.glob, filepath.Base(s)); ok {
		return true
	}
	if ok, _ := filepath.Match(g.glob, s); ok {
		return true
	}
	// A bare word should select anything containing it, so plain
	// "fedora" works without the user writing "*fedora*".
	if !strings.ContainsAny(g.glob, "*?[") {
		return strings.Contains(s, g.glob)
	}
	return false
}

func (g *globMatcher) pattern() string { return g.patternText }

// regexMatcher handles patterns written as /expr/.
type regexMatcher struct {
	regex       *regexp.Regexp
	patternText string
}

func (r *regexMatcher) matches(s string) bool { return r.regex.MatchString(s) }

func (r *regexMatcher) pattern() string { return r.patternText }

// createMatcher builds a matcher for one pattern. Patterns enclosed in
// slashes are regular expressions, everything else is a glob.
func createMatcher(pattern string) (matcher, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("empty filter pattern")
	}

	if strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") && len(pattern) > 2 {
		re, err := regexp.Compile("(?i)" + pattern[1:len(pattern)-1])
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", pattern, err)
		}
		return &regexMatcher{regex: re, patternText: pattern}, nil
	}

	glob := strings.ToLower(pattern)
	glob = strings.ReplaceAll(glob, ".*", "*")
	glob = strings.ReplaceAll(glob, ".+", "*")
	return &globMatcher{glob: glob, patternText: pattern}, nil
}

func createMatchers(patterns []string) ([]matcher, error) {
	ms := make([]matcher, 0, len(patterns))
	for _, p := range patterns {
		m, err := createMatcher(p)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return ms, nil
}

func matchAny(ms []matcher, s string) bool {
	for _, m := range ms {
		if m.matches(s) {
			return true
		}
	}
	return false
}
