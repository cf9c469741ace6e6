// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/pljakobs/distroget/pkg/distroget"
)

// downloadsView renders the transfer pane: totals, one bar per active
// transfer, then the queue and recent outcomes.
func (m model) downloadsView(w, h int) string {
	inner := w - 4
	s := m.snap

	var b strings.Builder
	b.WriteString(titleStyle.Render(" downloads ") + " " + crumbStyle.Render("→ "+m.dest.String()) + "\n")
	b.WriteString(fmt.Sprintf("%d queued · %d active · %d done · %d failed\n",
		len(s.Queued), len(s.Active), s.Completed, s.Failed))
	if sp := m.speed.value(); sp > 1 && len(s.Active) > 0 {
		b.WriteString(dimStyle.Render(humanize.IBytes(uint64(sp))+"/s") + "\n")
	}
	b.WriteString("\n")

	for _, u := range activeOrder(s) {
		at := s.Active[u]
		b.WriteString("⬇ " + truncate(at.Filename, inner-2) + "\n")

		var pct float64
		if at.Total > 0 {
			pct = float64(at.Bytes) / float64(at.Total)
			if pct > 1 {
				pct = 1
			}
		}
		bar := m.bar
		bar.Width = inner - 2
		b.WriteString("  " + bar.ViewAs(pct) + "\n")

		size := humanize.IBytes(uint64(at.Bytes))
		if at.Total > 0 {
			size += " / " + humanize.IBytes(uint64(at.Total))
		}
		if n := s.RetryCounts[u]; n > 0 {
			size += " " + errStyle.Render(strings.Repeat("·", n))
		}
		b.WriteString("  " + dimStyle.Render(size) + "\n")
	}

	const listCap = 5
	for i, u := range s.Queued {
		if i == listCap {
			b.WriteString(dimStyle.Render(fmt.Sprintf("⋯ %d more queued", len(s.Queued)-listCap)) + "\n")
			break
		}
		b.WriteString(dimStyle.Render("⋯ "+truncate(baseName(u), inner-2)) + "\n")
	}
	for _, u := range s.FailedURLs {
		b.WriteString(errStyle.Render("● "+truncate(baseName(u), inner-2)) + "\n")
	}
	done := s.CompletedURLs
	if len(done) > listCap {
		done = done[len(done)-listCap:]
	}
	for _, u := range done {
		b.WriteString(doneStyle.Render("✓ "+truncate(baseName(u), inner-2)) + "\n")
	}

	return paneStyle.Width(w - 2).Height(h - 2).MaxHeight(h).Render(clampLines(b.String(), h-2))
}

// activeOrder gives the in-flight URLs a stable display order.
func activeOrder(s distroget.Snapshot) []string {
	urls := make([]string, 0, len(s.Active))
	for u := range s.Active {
		urls = append(urls, u)
	}
	sort.Slice(urls, func(i, j int) bool {
		return s.Active[urls[i]].Filename < s.Active[urls[j]].Filename
	})
	return urls
}

func activeBytes(s distroget.Snapshot) int64 {
	var n int64
	for _, at := range s.Active {
		n += at.Bytes
	}
	return n
}

func clampLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

func baseName(rawurl string) string {
	s := rawurl
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return rawurl
	}
	return s
}

func truncate(s string, w int) string {
	if w <= 1 || utf8.RuneCountInString(s) <= w {
		return s
	}
	r := []rune(s)
	return string(r[:w-1]) + "…"
}

// speedSmoothing is the EMA factor for the throughput readout; lower
// is smoother, higher is more responsive.
const speedSmoothing = 0.3

// speedometer tracks smoothed aggregate throughput from the bytes in
// flight. A completing file drops its bytes out of the sum, which
// reads as a negative delta; those are clamped rather than shown as a
// stall.
type speedometer struct {
	last     int64
	lastAt   time.Time
	smoothed float64
}

func (s *speedometer) observe(total int64) {
	now := time.Now()
	if s.lastAt.IsZero() {
		s.lastAt, s.last = now, total
		return
	}
	dt := now.Sub(s.lastAt).Seconds()
	if dt < 0.05 {
		return
	}
	delta := float64(total - s.last)
	if delta < 0 {
		delta = 0
	}
	inst := delta / dt
	if s.smoothed == 0 {
		s.smoothed = inst
	} else {
		s.smoothed = speedSmoothing*inst + (1-speedSmoothing)*s.smoothed
	}
	s.lastAt, s.last = now, total
}

func (s *speedometer) value() float64 { return s.smoothed }
