// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"fmt"
	"io"
)

// RenderTree writes the catalog as a box-drawing tree, sections in
// document order with their entries nested beneath them.
func RenderTree(w io.Writer, c *Catalog) {
	if c == nil || c.root == nil {
		return
	}
	renderChildren(w, c.root, "")
}

func renderChildren(w io.Writer, n *Node, prefix string) {
	total := len(n.Entries) + len(n.Children)
	idx := 0
	for _, e := range n.Entries {
		idx++
		fmt.Fprintf(w, "%s%s%s\n", prefix, marker(idx == total), e.Name)
	}
	for _, child := range n.Children {
		idx++
		last := idx == total
		title := child.Title
		if child.Updated != "" {
			title += " (updated " + child.Updated + ")"
		}
		fmt.Fprintf(w, "%s%s%s\n", prefix, marker(last), title)

		childPrefix := prefix + "│   "
		if last {
			childPrefix = prefix + "    "
		}
		renderChildren(w, child, childPrefix)
	}
}

func marker(last bool) string {
	if last {
		return "└── "
	}
	return "├── "
}
