// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/pljakobs/distroget/pkg/distroget"
)

// newProgress picks the renderer for the current mode: JSON lines,
// plain lines, or a live bar pool on a TTY. The returned close func
// must run after the engine stops to release the terminal.
func newProgress(ro *RootOpts) (distroget.ProgressFunc, func()) {
	switch {
	case ro.JSONOut:
		return jsonProgress(os.Stdout), func() {}
	case ro.Quiet || !term.IsTerminal(int(os.Stdout.Fd())):
		return lineProgress(os.Stdout), func() {}
	default:
		r := &barRenderer{bars: make(map[string]*pb.ProgressBar)}
		return r.handle, r.close
	}
}

// jsonProgress returns a JSON-lines progress handler.
func jsonProgress(w io.Writer) distroget.ProgressFunc {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	var mu sync.Mutex
	return func(ev distroget.ProgressEvent) {
		mu.Lock()
		_ = enc.Encode(ev)
		mu.Unlock()
	}
}

// lineProgress returns a line-per-event handler for non-interactive
// output. Per-chunk progress events are dropped; they would flood a
// log file.
func lineProgress(w io.Writer) distroget.ProgressFunc {
	var mu sync.Mutex
	return func(ev distroget.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Event {
		case distroget.EventQueued:
			fmt.Fprintf(w, "queued: %s\n", ev.URL)
		case distroget.EventFileStart:
			if ev.Total > 0 {
				fmt.Fprintf(w, "downloading: %s (%s)\n", ev.Name, humanize.IBytes(uint64(ev.Total)))
			} else {
				fmt.Fprintf(w, "downloading: %s\n", ev.Name)
			}
		case distroget.EventFileSkip:
			fmt.Fprintf(w, "skip: %s (already exists)\n", ev.Name)
		case distroget.EventFileDone:
			fmt.Fprintf(w, "done: %s\n", ev.Name)
		case distroget.EventRetry:
			fmt.Fprintf(w, "retry %d: %s: %s\n", ev.Attempt, ev.Name, ev.Err)
		case distroget.EventFileError:
			fmt.Fprintf(w, "failed: %s: %s\n", ev.Name, ev.Err)
		case distroget.EventForwardStart:
			fmt.Fprintf(w, "uploading: %s\n", ev.Name)
		case distroget.EventForwardDone:
			fmt.Fprintf(w, "uploaded: %s\n", ev.Name)
		case distroget.EventForwardError:
			fmt.Fprintf(w, "upload failed (kept locally): %s: %s\n", ev.Name, ev.Err)
		case distroget.EventStopped:
			fmt.Fprintln(w, "stopped")
		}
	}
}

// barRenderer drives a cheggaaa/pb pool: one bar per URL, created on
// first sight and finished in place, docker-pull style. Skipped files
// appear as already-finished bars.
type barRenderer struct {
	mu     sync.Mutex
	pool   *pb.Pool
	bars   map[string]*pb.ProgressBar
	broken bool
}

func (r *barRenderer) handle(ev distroget.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.broken {
		return
	}

	switch ev.Event {
	case distroget.EventFileStart:
		bar := r.bar(ev.URL, ev.Name, ev.Total)
		bar.Set("suffix", "")
		bar.SetCurrent(0)
		if ev.Total > 0 {
			bar.SetTotal(ev.Total)
		}
	case distroget.EventFileProgress:
		bar := r.bar(ev.URL, ev.Name, ev.Total)
		if ev.Total > 0 {
			bar.SetTotal(ev.Total)
		}
		bar.SetCurrent(ev.Bytes)
	case distroget.EventFileSkip:
		bar := r.bar(ev.URL, ev.Name, 1)
		bar.Set("suffix", "(already exists)")
		bar.SetCurrent(1)
		bar.Finish()
	case distroget.EventFileDone:
		bar := r.bar(ev.URL, ev.Name, ev.Total)
		if ev.Total > 0 {
			bar.SetCurrent(ev.Total)
		}
		bar.Set("suffix", "")
		bar.Finish()
	case distroget.EventRetry:
		bar := r.bar(ev.URL, ev.Name, ev.Total)
		bar.Set("suffix", fmt.Sprintf("(retry %d)", ev.Attempt))
	case distroget.EventFileError:
		bar := r.bar(ev.URL, ev.Name, ev.Total)
		bar.Set("suffix", "FAILED")
		bar.Finish()
	case distroget.EventForwardStart:
		bar := r.bar(ev.URL, ev.Name, ev.Total)
		bar.Set("suffix", "(uploading)")
	case distroget.EventForwardDone:
		bar := r.bar(ev.URL, ev.Name, ev.Total)
		bar.Set("suffix", "(uploaded)")
	case distroget.EventForwardError:
		bar := r.bar(ev.URL, ev.Name, ev.Total)
		bar.Set("suffix", "(upload failed, kept locally)")
	}
}

// bar returns the bar for url, creating and pooling it on first use.
func (r *barRenderer) bar(url, name string, total int64) *pb.ProgressBar {
	if bar, ok := r.bars[url]; ok {
		return bar
	}
	if total < 0 {
		total = 0
	}
	bar := pb.New64(total).
		SetTemplate(pb.Full).
		Set(pb.Bytes, true).
		Set("prefix", name)
	r.bars[url] = bar

	if r.pool == nil {
		pool, err := pb.StartPool(bar)
		if err != nil {
			// No usable terminal after all; drop bar output rather
			// than corrupt the stream.
			r.broken = true
			return bar
		}
		r.pool = pool
		return bar
	}
	r.pool.Add(bar)
	return bar
}

func (r *barRenderer) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bar := range r.bars {
		if !bar.IsFinished() {
			bar.Finish()
		}
	}
	if r.pool != nil {
		_ = r.pool.Stop()
	}
}
