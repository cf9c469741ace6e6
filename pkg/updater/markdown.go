// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package updater

import (
	"bytes"
	"fmt"
	"regexp"
)

// nextSectionRe finds the start of the following top-level section.
// "[^#]" keeps "###" subsections inside the current one.
var nextSectionRe = regexp.MustCompile(`(?m)^## [^#]`)

// sectionHeadingRe matches the "## <name>" heading line for a section.
func sectionHeadingRe(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^## ` + regexp.QuoteMeta(name) + `[ \t]*$`)
}

// renderSection renders a complete "##" section: heading, an
// Auto-updated comment when stamp is set, then one "###" group per
// entry batch.
func renderSection(name, stamp string, groups []Group) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "## %s\n", name)
	if stamp != "" {
		fmt.Fprintf(&b, "<!-- Auto-updated: %s -->\n", stamp)
	}
	b.WriteByte('\n')
	for _, g := range groups {
		fmt.Fprintf(&b, "### %s\n", g.Heading)
		for _, e := range g.Entries {
			fmt.Fprintf(&b, "- [%s](%s)\n", e.Name, e.URL)
		}
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// spliceSection swaps the section matched by headingRe for rendered,
// or appends rendered when the document has no such section yet. The
// section runs from its heading to the next "##" heading or the end
// of the document.
func spliceSection(doc []byte, headingRe *regexp.Regexp, rendered []byte) []byte {
	loc := headingRe.FindIndex(doc)
	if loc == nil {
		out := make([]byte, 0, len(doc)+len(rendered)+2)
		out = append(out, doc...)
		if len(doc) > 0 && doc[len(doc)-1] != '\n' {
			out = append(out, '\n')
		}
		out = append(out, '\n')
		out = append(out, rendered...)
		return out
	}

	end := len(doc)
	if next := nextSectionRe.FindIndex(doc[loc[1]:]); next != nil {
		end = loc[1] + next[0]
	}

	out := make([]byte, 0, len(doc)-(end-loc[0])+len(rendered))
	out = append(out, doc[:loc[0]]...)
	out = append(out, rendered...)
	out = append(out, doc[end:]...)
	return out
}
