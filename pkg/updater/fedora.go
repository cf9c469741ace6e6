// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package updater

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/pljakobs/distroget/pkg/catalog"
)

var (
	fedoraSectionRe = regexp.MustCompile(`(?m)^## Fedora(?:[ \t]+Workstation)?[ \t]*$`)
	fedoraDirRe     = regexp.MustCompile(`href="(\d+)/"`)
	fedoraWorkRe    = regexp.MustCompile(`href="(Fedora-Workstation-Live[^"]*\.iso)"`)
	fedoraSpinRe    = regexp.MustCompile(`href="(Fedora-[^"]*\.iso)"`)
	fedoraSpinName  = regexp.MustCompile(`Fedora-([^-]+)-`)
)

// Fedora tracks the two most recent Fedora releases, with Workstation
// and the Spins as separate groups per release.
type Fedora struct {
	c        *Client
	releases string
}

func NewFedora(c *Client) *Fedora {
	return &Fedora{c: c, releases: "https://download.fedoraproject.org/pub/fedora/linux/releases"}
}

func (f *Fedora) Name() string { return "Fedora" }

// Latest lists the release directory and keeps the two highest
// numbered releases, so the previous release stays available while
// mirrors populate the new one.
func (f *Fedora) Latest(ctx context.Context) (Versions, error) {
	body, err := f.c.get(ctx, f.releases+"/")
	if err != nil {
		return nil, err
	}
	var nums []int
	for _, m := range fedoraDirRe.FindAllSubmatch(body, -1) {
		if n, err := strconv.Atoi(string(m[1])); err == nil {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return nil, fmt.Errorf("fedora: no releases found at %s", f.releases)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(nums)))
	if len(nums) > 2 {
		nums = nums[:2]
	}
	vs := make(Versions, len(nums))
	for i, n := range nums {
		vs[i] = Version{Value: strconv.Itoa(n)}
	}
	return vs, nil
}

// Links fetches the Workstation image and the Spins directory for each
// release. A mirror directory that fails to list is skipped; the error
// is only reported when nothing at all could be fetched.
func (f *Fedora) Links(ctx context.Context, vs Versions) ([]Group, error) {
	var groups []Group
	var lastErr error

	for _, v := range vs {
		wsBase := fmt.Sprintf("%s/%s/Workstation/x86_64/iso", f.releases, v.Value)
		if body, err := f.c.get(ctx, wsBase+"/"); err != nil {
			lastErr = err
		} else if m := fedoraWorkRe.FindSubmatch(body); m != nil {
			iso := string(m[1])
			groups = append(groups, Group{
				Heading: fmt.Sprintf("Fedora %s Workstation", v.Value),
				Entries: []catalog.Entry{{Name: iso, URL: wsBase + "/" + iso}},
			})
		}

		spinBase := fmt.Sprintf("%s/%s/Spins/x86_64/iso", f.releases, v.Value)
		if body, err := f.c.get(ctx, spinBase+"/"); err != nil {
			lastErr = err
		} else if entries := fedoraSpins(spinBase, body); len(entries) > 0 {
			groups = append(groups, Group{
				Heading: fmt.Sprintf("Fedora %s Spins", v.Value),
				Entries: entries,
			})
		}
	}

	if len(groups) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return groups, nil
}

// fedoraSpins deduplicates the spin images of one release directory
// and names each by its spin ("KDE", "Xfce", ...).
func fedoraSpins(base string, body []byte) []catalog.Entry {
	seen := make(map[string]struct{})
	var isos []string
	for _, m := range fedoraSpinRe.FindAllSubmatch(body, -1) {
		iso := string(m[1])
		if _, ok := seen[iso]; ok {
			continue
		}
		seen[iso] = struct{}{}
		isos = append(isos, iso)
	}
	sort.Strings(isos)

	entries := make([]catalog.Entry, 0, len(isos))
	for _, iso := range isos {
		name := iso
		if m := fedoraSpinName.FindStringSubmatch(iso); m != nil {
			name = m[1]
		}
		entries = append(entries, catalog.Entry{Name: name, URL: base + "/" + iso})
	}
	return entries
}

func (f *Fedora) UpdateSection(doc []byte, _ Versions, groups []Group) []byte {
	if len(groups) == 0 {
		return doc
	}
	return spliceSection(doc, fedoraSectionRe, renderSection(f.Name(), f.c.stamp(), groups))
}
