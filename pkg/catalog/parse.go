// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	linkRe    = regexp.MustCompile(`^\s*-\s*\[([^\]]+)\]\(([^)]+)\)`)
	updatedRe = regexp.MustCompile(`<!--\s*Auto-updated:\s*([0-9]{4}-[0-9]{2}-[0-9]{2})\s*-->`)
)

// Parse reads a markdown catalog. Sections come from "##", "###" and
// "####" headings, entries from "- [Name](URL)" list items. Lines
// that are neither are ignored, so prose and the top-level document
// title pass through harmlessly.
func Parse(r io.Reader) (*Catalog, error) {
	root := &Node{Level: 1}
	stack := []*Node{root}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()

		if level, title, ok := heading(line); ok {
			for len(stack) > 1 && stack[len(stack)-1].Level >= level {
				stack = stack[:len(stack)-1]
			}
			n := &Node{Title: title, Level: level}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, n)
			stack = append(stack, n)
			continue
		}

		if m := linkRe.FindStringSubmatch(line); m != nil {
			cur := stack[len(stack)-1]
			cur.Entries = append(cur.Entries, Entry{Name: m[1], URL: m[2]})
			continue
		}

		if m := updatedRe.FindStringSubmatch(line); m != nil {
			cur := stack[len(stack)-1]
			if cur.Updated == "" {
				cur.Updated = m[1]
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return &Catalog{root: root}, nil
}

// ParseBytes is Parse over an in-memory document.
func ParseBytes(b []byte) (*Catalog, error) {
	return Parse(bytes.NewReader(b))
}

// heading detects a section heading of depth 2 to 4.
func heading(line string) (level int, title string, ok bool) {
	switch {
	case strings.HasPrefix(line, "#### "):
		return 4, strings.TrimSpace(line[5:]), true
	case strings.HasPrefix(line, "### "):
		return 3, strings.TrimSpace(line[4:]), true
	case strings.HasPrefix(line, "## "):
		return 2, strings.TrimSpace(line[3:]), true
	}
	return 0, "", false
}
