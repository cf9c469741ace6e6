// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package catalog models the markdown list of distribution images that
// drives downloads: nested sections keyed by heading depth, each
// holding name/URL entries. The same file is both human-readable
// documentation and the machine source for the browser, the CLI and
// the auto-updaters.
package catalog

import (
	"sort"
	"strings"
)

// Entry is one downloadable image.
type Entry struct {
	// Name is the link text, e.g. "Fedora Workstation 42".
	Name string `json:"name"`

	// URL points at the image.
	URL string `json:"url"`
}

// Node is a section of the catalog: a heading, the entries directly
// under it, and any nested subsections.
type Node struct {
	// Title is the heading text without the leading hashes.
	Title string `json:"title"`

	// Level is the markdown heading depth (2 for "##").
	Level int `json:"level"`

	// Updated is the date from an "Auto-updated" comment under the
	// heading, empty when the section carries none.
	Updated string `json:"updated,omitempty"`

	// Entries are the links directly under this heading, before any
	// subsection.
	Entries []Entry `json:"entries,omitempty"`

	// Children are the nested sections in document order.
	Children []*Node `json:"children,omitempty"`
}

// AllEntries returns the entries of this section and of all nested
// subsections in document order.
func (n *Node) AllEntries() []Entry {
	if n == nil {
		return nil
	}
	out := append([]Entry(nil), n.Entries...)
	for _, child := range n.Children {
		out = append(out, child.AllEntries()...)
	}
	return out
}

// URLs returns the entry URLs of this section and of all nested
// subsections in document order.
func (n *Node) URLs() []string {
	entries := n.AllEntries()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.URL)
	}
	return out
}

// SortedChildren returns the subsections ordered by title,
// case-insensitive, for menu display. The node itself stays in
// document order.
func (n *Node) SortedChildren() []*Node {
	if n == nil {
		return nil
	}
	out := append([]*Node(nil), n.Children...)
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
	})
	return out
}

// Catalog is the parsed tree. The root node is synthetic; its children
// are the document's top-level sections.
type Catalog struct {
	root *Node
}

// Sections returns the top-level sections in document order.
func (c *Catalog) Sections() []*Node {
	if c == nil || c.root == nil {
		return nil
	}
	return c.root.Children
}

// Find navigates the tree by section titles, matching case-insensitively.
// Returns nil when any step is missing.
func (c *Catalog) Find(titles ...string) *Node {
	if c == nil || c.root == nil {
		return nil
	}
	n := c.root
	for _, title := range titles {
		var next *Node
		for _, child := range n.Children {
			if strings.EqualFold(child.Title, title) {
				next = child
				break
			}
		}
		if next == nil {
			return nil
		}
		n = next
	}
	return n
}

// Sub returns a catalog rooted at the section named by titles, so the
// usual tree operations apply to just that subtree. Returns nil when
// the path does not exist; with no titles the catalog itself comes
// back.
func (c *Catalog) Sub(titles ...string) *Catalog {
	if len(titles) == 0 {
		return c
	}
	n := c.Find(titles...)
	if n == nil {
		return nil
	}
	return &Catalog{root: n}
}

// Walk visits every entry depth-first in document order. path holds
// the section titles from the top level down to the entry's section;
// it is reused between calls, so copy it before retaining. Returning
// false stops the walk.
func (c *Catalog) Walk(fn func(path []string, e Entry) bool) {
	if c == nil || c.root == nil {
		return
	}
	walkNode(c.root, nil, fn)
}

func walkNode(n *Node, path []string, fn func(path []string, e Entry) bool) bool {
	for _, e := range n.Entries {
		if !fn(path, e) {
			return false
		}
	}
	for _, child := range n.Children {
		if !walkNode(child, append(path, child.Title), fn) {
			return false
		}
	}
	return true
}

// URLs returns every entry URL in document order.
func (c *Catalog) URLs() []string {
	var out []string
	c.Walk(func(_ []string, e Entry) bool {
		out = append(out, e.URL)
		return true
	})
	return out
}

// Entries returns every entry in document order.
func (c *Catalog) Entries() []Entry {
	var out []Entry
	c.Walk(func(_ []string, e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Len counts the entries in the whole tree.
func (c *Catalog) Len() int {
	n := 0
	c.Walk(func([]string, Entry) bool {
		n++
		return true
	})
	return n
}

// Filter returns a pruned copy keeping entries whose name, URL or
// enclosing section path matches any of the patterns. Sections left
// without entries or children are dropped. An empty pattern list
// returns the catalog unchanged.
func (c *Catalog) Filter(patterns []string) (*Catalog, error) {
	if c == nil || c.root == nil || len(patterns) == 0 {
		return c, nil
	}
	ms, err := createMatchers(patterns)
	if err != nil {
		return nil, err
	}
	root := filterNode(c.root, nil, ms)
	if root == nil {
		root = &Node{Level: 1}
	}
	return &Catalog{root: root}, nil
}

func filterNode(n *Node, path []string, ms []matcher) *Node {
	out := &Node{Title: n.Title, Level: n.Level, Updated: n.Updated}
	pathHit := matchAny(ms, strings.Join(path, "/"))
	for _, e := range n.Entries {
		if pathHit || matchAny(ms, e.Name) || matchAny(ms, e.URL) {
			out.Entries = append(out.Entries, e)
		}
	}
	for _, child := range n.Children {
		if kept := filterNode(child, append(path, child.Title), ms); kept != nil {
			out.Children = append(out.Children, kept)
		}
	}
	if len(out.Entries) == 0 && len(out.Children) == 0 {
		return nil
	}
	return out
}
