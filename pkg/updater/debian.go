// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package updater

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pljakobs/distroget/pkg/catalog"
)

var (
	debianSectionRe = regexp.MustCompile(`(?m)^## Debian[ \t]*$`)
	debianLiveRe    = regexp.MustCompile(`debian-live-(\d+\.\d+(?:\.\d+)?)-amd64`)
	debianIsoRe     = regexp.MustCompile(`href="(debian-live-[^"]+\.iso)"`)
)

// debianDesktops maps filename fragments to desktop environment
// display names. Checked in order; the first hit wins.
var debianDesktops = []struct {
	fragment string
	name     string
}{
	{"cinnamon", "Cinnamon"},
	{"gnome", "GNOME"},
	{"kde", "KDE Plasma"},
	{"xfce", "Xfce"},
	{"lxde", "LXDE"},
	{"lxqt", "LXQt"},
	{"mate", "MATE"},
}

// Debian tracks the stable live images plus the weekly testing
// builds, grouped per desktop environment.
type Debian struct {
	c    *Client
	base string
}

func NewDebian(c *Client) *Debian {
	return &Debian{c: c, base: "https://cdimage.debian.org/debian-cd"}
}

func (d *Debian) Name() string { return "Debian" }

// Latest reads the stable major version out of the current live image
// file names. Testing has no number; it rides along as its own
// channel.
func (d *Debian) Latest(ctx context.Context) (Versions, error) {
	body, err := d.c.get(ctx, d.base+"/current-live/amd64/iso-hybrid/")
	if err != nil {
		return nil, err
	}
	m := debianLiveRe.FindSubmatch(body)
	if m == nil {
		return nil, fmt.Errorf("debian: no live images found under %s", d.base)
	}
	full := string(m[1])
	stable := strings.SplitN(full, ".", 2)[0]
	return Versions{
		{Channel: "stable", Value: stable},
		{Channel: "testing", Value: "testing"},
	}, nil
}

// Links lists each branch directory and buckets the images by desktop
// environment, one group per environment and branch.
func (d *Debian) Links(ctx context.Context, vs Versions) ([]Group, error) {
	type branch struct {
		channel string
		dir     string
		label   string
	}
	var branches []branch
	for _, v := range vs {
		switch v.Channel {
		case "stable":
			branches = append(branches, branch{channel: "stable", dir: "current-live", label: v.Value})
		case "testing":
			branches = append(branches, branch{channel: "testing", dir: "weekly-live-builds", label: "testing"})
		}
	}

	var groups []Group
	var lastErr error
	for _, br := range branches {
		baseURL := fmt.Sprintf("%s/%s/amd64/iso-hybrid", d.base, br.dir)
		body, err := d.c.get(ctx, baseURL+"/")
		if err != nil {
			lastErr = err
			continue
		}

		byDesktop := make(map[string][]catalog.Entry)
		for _, iso := range dedupeSorted(debianIsoRe, body) {
			name := desktopFor(iso)
			if name == "" {
				continue
			}
			byDesktop[name] = append(byDesktop[name], catalog.Entry{Name: iso, URL: baseURL + "/" + iso})
		}

		names := make([]string, 0, len(byDesktop))
		for name := range byDesktop {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			groups = append(groups, Group{
				Heading: fmt.Sprintf("Debian %s %s (%s)", br.label, name, capitalize(br.channel)),
				Entries: byDesktop[name],
			})
		}
	}

	if len(groups) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return groups, nil
}

func (d *Debian) UpdateSection(doc []byte, _ Versions, groups []Group) []byte {
	if len(groups) == 0 {
		return doc
	}
	return spliceSection(doc, debianSectionRe, renderSection(d.Name(), d.c.stamp(), groups))
}

// desktopFor identifies the desktop environment an image ships.
func desktopFor(iso string) string {
	lower := strings.ToLower(iso)
	for _, de := range debianDesktops {
		if strings.Contains(lower, de.fragment) {
			return de.name
		}
	}
	return ""
}

// dedupeSorted extracts unique submatches in sorted order.
func dedupeSorted(re *regexp.Regexp, body []byte) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range re.FindAllSubmatch(body, -1) {
		s := string(m[1])
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
