// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package updater

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	goversion "github.com/hashicorp/go-version"

	"github.com/pljakobs/distroget/pkg/catalog"
)

var (
	ubuntuSectionRe = regexp.MustCompile(`(?m)^## Ubuntu[ \t]*$`)
	ubuntuDirRe     = regexp.MustCompile(`href="(\d+\.\d+)/"`)
	ubuntuDesktopRe = regexp.MustCompile(`href="([^"]*desktop-amd64\.iso)"`)
)

// Ubuntu tracks the newest LTS release and, when newer, the latest
// interim release, across the main flavors.
type Ubuntu struct {
	c        *Client
	releases string
	cdimage  string
}

func NewUbuntu(c *Client) *Ubuntu {
	return &Ubuntu{
		c:        c,
		releases: "https://releases.ubuntu.com",
		cdimage:  "https://cdimage.ubuntu.com",
	}
}

func (u *Ubuntu) Name() string { return "Ubuntu" }

// Latest scrapes the release index. LTS releases are the x.04 ones;
// the newest of those is always reported, joined by the newest
// overall release when it is something else.
func (u *Ubuntu) Latest(ctx context.Context) (Versions, error) {
	body, err := u.c.get(ctx, u.releases+"/")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var all goversion.Collection
	var lts goversion.Collection
	for _, m := range ubuntuDirRe.FindAllSubmatch(body, -1) {
		s := string(m[1])
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		v, err := goversion.NewVersion(s)
		if err != nil {
			continue
		}
		all = append(all, v)
		if len(s) > 3 && s[len(s)-3:] == ".04" {
			lts = append(lts, v)
		}
	}
	if len(lts) == 0 {
		return nil, fmt.Errorf("ubuntu: no LTS releases found at %s", u.releases)
	}

	sort.Sort(all)
	sort.Sort(lts)
	newest := all[len(all)-1].Original()
	newestLTS := lts[len(lts)-1].Original()

	vs := Versions{{Channel: "lts", Value: newestLTS}}
	if newest != newestLTS {
		vs = append(vs, Version{Channel: "latest", Value: newest})
	}
	return vs, nil
}

// flavorURLs lists the flavors alphabetically so the rendered groups
// come out in a stable order.
func (u *Ubuntu) flavorURLs(version string) []struct{ name, url string } {
	return []struct{ name, url string }{
		{"Kubuntu", fmt.Sprintf("%s/kubuntu/releases/%s/release/", u.cdimage, version)},
		{"Lubuntu", fmt.Sprintf("%s/lubuntu/releases/%s/release/", u.cdimage, version)},
		{"Ubuntu", fmt.Sprintf("%s/%s/", u.releases, version)},
		{"Ubuntu Budgie", fmt.Sprintf("%s/ubuntu-budgie/releases/%s/release/", u.cdimage, version)},
		{"Ubuntu MATE", fmt.Sprintf("%s/ubuntu-mate/releases/%s/release/", u.cdimage, version)},
		{"Xubuntu", fmt.Sprintf("%s/xubuntu/releases/%s/release/", u.cdimage, version)},
	}
}

// Links probes each flavor's release directory for the desktop image.
// Flavors without a build for the release are skipped quietly; not
// every flavor ships every cycle.
func (u *Ubuntu) Links(ctx context.Context, vs Versions) ([]Group, error) {
	var groups []Group
	var lastErr error

	for _, v := range vs {
		label := ""
		if v.Channel == "lts" {
			label = " LTS"
		}
		for _, fl := range u.flavorURLs(v.Value) {
			body, err := u.c.get(ctx, fl.url)
			if err != nil {
				lastErr = err
				continue
			}
			m := ubuntuDesktopRe.FindSubmatch(body)
			if m == nil {
				continue
			}
			iso := string(m[1])
			groups = append(groups, Group{
				Heading: fmt.Sprintf("%s %s%s", fl.name, v.Value, label),
				Entries: []catalog.Entry{{Name: iso, URL: fl.url + iso}},
			})
		}
	}

	if len(groups) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return groups, nil
}

func (u *Ubuntu) UpdateSection(doc []byte, _ Versions, groups []Group) []byte {
	if len(groups) == 0 {
		return doc
	}
	return spliceSection(doc, ubuntuSectionRe, renderSection(u.Name(), u.c.stamp(), groups))
}
