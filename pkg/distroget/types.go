// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package distroget

import (
	"strings"
	"time"
)

// Destination identifies where fetched files end up. A destination is
// either a local directory or a remote "host:path" pair reached through
// a Forwarder. The zero value means the current directory.
type Destination struct {
	// Dir is the local target directory. Ignored when Host is set.
	Dir string

	// Host is a remote endpoint ("server" or "user@server"). When
	// non-empty the destination is remote: files are staged locally
	// and relayed after each transfer finishes.
	Host string

	// Path is the directory on Host. Only meaningful when Host is set.
	Path string
}

// ParseDestination interprets a user-supplied destination string.
// A string containing a colon whose prefix is not a path ("user@host:/srv/iso")
// is remote; everything else is a local directory. Absolute paths with
// colons in later components stay local.
func ParseDestination(s string) Destination {
	if s == "" {
		return Destination{Dir: "."}
	}
	if i := strings.Index(s, ":"); i > 0 && !strings.HasPrefix(s, "/") && !strings.Contains(s[:i], "/") {
		return Destination{Host: s[:i], Path: s[i+1:]}
	}
	return Destination{Dir: s}
}

// IsRemote reports whether files are relayed to another host after
// download instead of written in place.
func (d Destination) IsRemote() bool { return d.Host != "" }

// String renders the destination the way ParseDestination accepts it.
func (d Destination) String() string {
	if d.IsRemote() {
		return d.Host + ":" + d.Path
	}
	return d.Dir
}

// Settings holds the tunables for a transfer Manager. The zero value is
// usable; DefaultSettings fills in the documented defaults explicitly.
type Settings struct {
	// Workers is the number of concurrent transfer goroutines.
	// Default 3.
	Workers int

	// MaxRetries is how many times a failed transfer is re-queued
	// before being marked failed for good. The first attempt is not a
	// retry, so a URL is tried at most MaxRetries+1 times. Zero means
	// the default of 3; a negative value disables retries.
	MaxRetries int

	// BackoffBase is the delay before the first retry. Each further
	// retry doubles it. Default 1s.
	BackoffBase time.Duration

	// BackoffMax caps the doubled delay. Zero means no cap.
	BackoffMax time.Duration

	// ChunkSize is the copy buffer size, accepting human-readable
	// values like "64KiB" or "1M". Transfers never use less than 8KiB.
	// Default "64KiB".
	ChunkSize string

	// LimitRate caps aggregate download throughput in bytes per second,
	// accepting values like "10MiB". Empty or "0" means unlimited.
	// The cap is shared by all workers.
	LimitRate string

	// HeaderTimeout bounds how long a server may take to start
	// responding. It does not bound the body transfer. Default 30s.
	HeaderTimeout time.Duration

	// StagingDir is where remote-destination transfers are written
	// before being relayed. Empty means the system temp directory.
	StagingDir string

	// UserAgent is sent with every request. Default "distroget/2".
	UserAgent string
}

// DefaultSettings returns the settings used when a field is left zero.
func DefaultSettings() Settings {
	return Settings{
		Workers:       3,
		MaxRetries:    3,
		BackoffBase:   time.Second,
		ChunkSize:     "64KiB",
		HeaderTimeout: 30 * time.Second,
		UserAgent:     "distroget/2",
	}
}

// withDefaults fills zero fields from DefaultSettings.
func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.Workers <= 0 {
		s.Workers = def.Workers
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = def.MaxRetries
	} else if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	if s.BackoffBase <= 0 {
		s.BackoffBase = def.BackoffBase
	}
	s.ChunkSize = defaultString(s.ChunkSize, def.ChunkSize)
	if s.HeaderTimeout <= 0 {
		s.HeaderTimeout = def.HeaderTimeout
	}
	s.UserAgent = defaultString(s.UserAgent, def.UserAgent)
	return s
}

// ActiveTransfer is the live progress of one in-flight URL.
type ActiveTransfer struct {
	// Filename is the base name derived from the URL.
	Filename string `json:"filename"`

	// Bytes is the cumulative count written so far.
	Bytes int64 `json:"bytes"`

	// Total is the expected size from Content-Length, or 0 when the
	// server did not send one.
	Total int64 `json:"total"`
}

// Snapshot is a point-in-time copy of a Manager's state. It shares no
// memory with the Manager, so callers may hold or mutate it freely
// while transfers continue.
type Snapshot struct {
	// Active maps in-flight URLs to their progress.
	Active map[string]ActiveTransfer `json:"active"`

	// Completed is the number of URLs finished successfully,
	// including ones skipped because the file already existed.
	Completed int `json:"completed"`

	// CompletedURLs lists those URLs.
	CompletedURLs []string `json:"completed_urls"`

	// Failed is the number of URLs that exhausted their retries or
	// failed terminally.
	Failed int `json:"failed"`

	// FailedURLs lists those URLs.
	FailedURLs []string `json:"failed_urls"`

	// RetryCounts maps URLs to how many retries they have consumed.
	// Entries are removed once a URL completes or fails for good.
	RetryCounts map[string]int `json:"retry_counts"`

	// Queued lists URLs accepted but not yet claimed by a worker, in
	// submission order.
	Queued []string `json:"queued"`

	// DownloadedFiles lists the local paths written this run, in
	// completion order. Skipped files are not included.
	DownloadedFiles []string `json:"downloaded_files"`

	// IsRemote reports whether the destination relays through a
	// Forwarder.
	IsRemote bool `json:"is_remote"`
}

// Pending reports whether any URL is still queued or in flight.
func (s Snapshot) Pending() bool { return len(s.Queued) > 0 || len(s.Active) > 0 }

// Event names carried by ProgressEvent.
const (
	EventQueued       = "queued"
	EventFileStart    = "file_start"
	EventFileProgress = "file_progress"
	EventFileSkip     = "file_skip"
	EventFileDone     = "file_done"
	EventRetry        = "retry"
	EventFileError    = "file_error"
	EventForwardStart = "forward_start"
	EventForwardDone  = "forward_done"
	EventForwardError = "forward_error"
	EventStopped      = "stopped"
)

// ProgressEvent is a single progress notification. Fields beyond Event,
// URL and Time are filled only where they make sense: Bytes/Total on
// transfer events, Attempt on retries, Err on errors.
type ProgressEvent struct {
	Event   string    `json:"event"`
	URL     string    `json:"url,omitempty"`
	Name    string    `json:"name,omitempty"`
	Bytes   int64     `json:"bytes,omitempty"`
	Total   int64     `json:"total,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	Err     string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// ProgressFunc receives progress events. It may be nil. Implementations
// must be safe for concurrent use and should return quickly; a slow
// callback stalls the worker that emitted the event.
type ProgressFunc func(ProgressEvent)
