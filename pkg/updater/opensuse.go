// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package updater

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"

	goversion "github.com/hashicorp/go-version"

	"github.com/pljakobs/distroget/pkg/catalog"
)

var (
	opensuseSectionRe = regexp.MustCompile(`(?m)^## openSUSE[ \t]*$`)
	opensuseDirRe     = regexp.MustCompile(`href="(\d+\.\d+)/"`)
)

// fallbackLeap is used when the Leap directory listing cannot be
// read; the URL scheme is stable enough that a known release beats
// reporting nothing.
const fallbackLeap = "16.0"

// OpenSUSE tracks the newest Leap release and the Tumbleweed rolling
// image.
type OpenSUSE struct {
	c    *Client
	base string
}

func NewOpenSUSE(c *Client) *OpenSUSE {
	return &OpenSUSE{c: c, base: "https://download.opensuse.org"}
}

func (o *OpenSUSE) Name() string { return "openSUSE" }

// Latest picks the highest Leap directory. Tumbleweed is rolling and
// always present. Scrape failures fall back to a known release
// instead of erroring out.
func (o *OpenSUSE) Latest(ctx context.Context) (Versions, error) {
	leap := fallbackLeap
	if body, err := o.c.get(ctx, o.base+"/distribution/leap/"); err == nil {
		var found goversion.Collection
		for _, m := range opensuseDirRe.FindAllSubmatch(body, -1) {
			if v, err := goversion.NewVersion(string(m[1])); err == nil {
				found = append(found, v)
			}
		}
		if len(found) > 0 {
			sort.Sort(found)
			leap = found[len(found)-1].Original()
		}
	}
	return Versions{
		{Channel: "Leap", Value: leap},
		{Channel: "Tumbleweed", Value: "latest"},
	}, nil
}

// Links builds the fixed DVD image URLs; openSUSE's naming scheme
// makes scraping unnecessary.
func (o *OpenSUSE) Links(_ context.Context, vs Versions) ([]Group, error) {
	var groups []Group
	for _, v := range vs {
		switch v.Channel {
		case "Leap":
			url := fmt.Sprintf("%s/distribution/leap/%s/iso/openSUSE-Leap-%s-DVD-x86_64-Media.iso", o.base, v.Value, v.Value)
			groups = append(groups, Group{
				Heading: fmt.Sprintf("openSUSE Leap %s", v.Value),
				Entries: []catalog.Entry{{Name: path.Base(url), URL: url}},
			})
		case "Tumbleweed":
			url := o.base + "/tumbleweed/iso/openSUSE-Tumbleweed-DVD-x86_64-Current.iso"
			groups = append(groups, Group{
				Heading: "openSUSE Tumbleweed",
				Entries: []catalog.Entry{{Name: path.Base(url), URL: url}},
			})
		}
	}
	return groups, nil
}

func (o *OpenSUSE) UpdateSection(doc []byte, _ Versions, groups []Group) []byte {
	if len(groups) == 0 {
		return doc
	}
	return spliceSection(doc, opensuseSectionRe, renderSection(o.Name(), o.c.stamp(), groups))
}
