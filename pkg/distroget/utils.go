// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package distroget

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/dustin/go-humanize"
)

// backoff computes retry delays: base doubled per consumed retry,
// optionally capped.
type backoff struct {
	base time.Duration
	max  time.Duration
}

// delay returns the wait before re-queueing a URL that has already
// consumed n retries. n=0 waits base, n=1 twice that, and so on.
func (b backoff) delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 32 {
		n = 32
	}
	d := b.base << uint(n)
	if b.max > 0 && d > b.max {
		d = b.max
	}
	return d
}

// sleepCtx waits for d unless ctx or stop fires first. It reports
// whether the full duration elapsed.
func sleepCtx(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// parseSize converts a human-readable byte count ("64KiB", "10MB",
// "1048576") to bytes.
func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	return int64(n), nil
}

// FileName derives the file name a transfer of raw would be written
// under. Useful for consumers that present queued URLs before any
// progress event has named them.
func FileName(raw string) string { return fileNameFromURL(raw) }

// fileNameFromURL derives a destination file name from the URL path.
func fileNameFromURL(raw string) string {
	name := raw
	if u, err := url.Parse(raw); err == nil {
		name = u.Path
	}
	base := path.Base(name)
	if base == "" || base == "." || base == "/" {
		return "download"
	}
	return base
}

// defaultString returns s, or def when s is empty.
func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
