// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package updater

import (
	"bytes"
	"context"

	"golang.org/x/sync/errgroup"
)

// Report is one updater's refresh outcome.
type Report struct {
	// Name of the distribution.
	Name string

	// Versions discovered upstream, nil when Latest failed.
	Versions Versions

	// Links is the number of download entries generated.
	Links int

	// Err is what went wrong, nil on success.
	Err error
}

// Refresh runs the updaters concurrently against doc, then splices
// the refreshed sections in updater order so the document layout
// stays deterministic. One distribution failing does not stop the
// others; its error lands in the report and its section is left as
// it was. The returned bool says whether the document changed.
func Refresh(ctx context.Context, doc []byte, ups []Updater) ([]byte, []Report, bool) {
	type result struct {
		vs     Versions
		groups []Group
		err    error
	}
	results := make([]result, len(ups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, up := range ups {
		i, up := i, up
		g.Go(func() error {
			vs, err := up.Latest(gctx)
			if err != nil {
				results[i] = result{err: err}
				return nil
			}
			groups, err := up.Links(gctx, vs)
			if err != nil {
				results[i] = result{vs: vs, err: err}
				return nil
			}
			results[i] = result{vs: vs, groups: groups}
			return nil
		})
	}
	_ = g.Wait()

	out := doc
	reports := make([]Report, len(ups))
	for i, up := range ups {
		r := results[i]
		links := 0
		for _, grp := range r.groups {
			links += len(grp.Entries)
		}
		reports[i] = Report{Name: up.Name(), Versions: r.vs, Links: links, Err: r.err}
		if r.err != nil || len(r.groups) == 0 {
			continue
		}
		out = up.UpdateSection(out, r.vs, r.groups)
	}
	return out, reports, !bytes.Equal(out, doc)
}
