// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package distroget

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// progressInterval throttles file_progress events so slow terminals do
// not become the bottleneck. State updates are not throttled.
const progressInterval = 200 * time.Millisecond

// Manager owns a FIFO queue of URLs and a fixed pool of workers
// draining it. URLs move through exactly one of four states: queued,
// active, completed or failed. Submitting a URL already in any of
// those states is a no-op, so callers may re-submit freely.
//
// Transient failures are re-queued with doubling delays until the
// retry budget runs out. The worker sleeping out a backoff keeps the
// URL claimed for the duration, which also means the worker is
// unavailable for other queue entries while it sleeps.
type Manager struct {
	cfg      Settings
	dest     Destination
	fwd      Forwarder
	client   *http.Client
	limiter  *rate.Limiter
	progress ProgressFunc

	chunk     int64
	retry     backoff
	staging   string
	targetDir string

	mu           sync.Mutex
	pending      []string
	queuedSet    map[string]struct{}
	active       map[string]*ActiveTransfer
	completed    []string
	completedSet map[string]struct{}
	failed       []string
	failedSet    map[string]struct{}
	retries      map[string]int
	files        []string
	waiters      []chan struct{}
	started      bool
	stopping     bool

	wake     chan struct{}
	stop     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	evOnce   sync.Once
}

// New builds a Manager for dest. Remote destinations get an scp
// forwarder automatically; UseForwarder can swap in another relay
// before Start. progress may be nil.
func New(dest Destination, cfg Settings, progress ProgressFunc) (*Manager, error) {
	cfg = cfg.withDefaults()
	chunk, err := parseSize(cfg.ChunkSize)
	if err != nil {
		return nil, err
	}
	if chunk < 8*1024 {
		chunk = 8 * 1024
	}
	var limiter *rate.Limiter
	if cfg.LimitRate != "" && cfg.LimitRate != "0" {
		bps, err := parseSize(cfg.LimitRate)
		if err != nil {
			return nil, err
		}
		if bps > 0 {
			limiter = rate.NewLimiter(rate.Limit(bps), int(chunk))
		}
	}

	m := &Manager{
		cfg:          cfg,
		dest:         dest,
		client:       buildHTTPClient(cfg.HeaderTimeout),
		limiter:      limiter,
		progress:     progress,
		chunk:        chunk,
		retry:        backoff{base: cfg.BackoffBase, max: cfg.BackoffMax},
		queuedSet:    make(map[string]struct{}),
		active:       make(map[string]*ActiveTransfer),
		completedSet: make(map[string]struct{}),
		failedSet:    make(map[string]struct{}),
		retries:      make(map[string]int),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
	if dest.IsRemote() {
		m.fwd = NewScpForwarder(dest.Host, dest.Path)
		m.staging = defaultString(cfg.StagingDir, os.TempDir())
	} else {
		m.targetDir = defaultString(dest.Dir, ".")
	}
	return m, nil
}

// UseForwarder replaces the relay for remote destinations. Must be
// called before Start.
func (m *Manager) UseForwarder(f Forwarder) { m.fwd = f }

// Destination returns the destination the manager writes to.
func (m *Manager) Destination() Destination { return m.dest }

// Start launches the worker pool. Workers live until Stop is called or
// ctx is cancelled; cancelling ctx aborts in-flight transfers too.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()
	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker(ctx)
	}
	return nil
}

// Add enqueues URLs in order and returns how many were accepted.
// Empty strings and URLs already queued, active, completed or failed
// are dropped silently. Safe to call from any goroutine, including
// progress callbacks; Add never blocks on the workers.
func (m *Manager) Add(urls ...string) int {
	accepted := 0
	for _, u := range urls {
		if u == "" {
			continue
		}
		m.mu.Lock()
		if m.seenLocked(u) {
			m.mu.Unlock()
			continue
		}
		// Reserve before publishing so the queued event always lands
		// ahead of the first file_start for this URL.
		m.queuedSet[u] = struct{}{}
		m.mu.Unlock()
		m.emit(ProgressEvent{Event: EventQueued, URL: u, Name: fileNameFromURL(u)})
		m.mu.Lock()
		m.pending = append(m.pending, u)
		m.mu.Unlock()
		m.signal()
		accepted++
	}
	return accepted
}

// seenLocked reports whether u is anywhere in the pipeline.
func (m *Manager) seenLocked(u string) bool {
	if _, ok := m.queuedSet[u]; ok {
		return true
	}
	if _, ok := m.active[u]; ok {
		return true
	}
	if _, ok := m.completedSet[u]; ok {
		return true
	}
	_, ok := m.failedSet[u]
	return ok
}

// Status returns a deep copy of the manager state. The copy shares no
// memory with the manager and stays coherent while workers proceed.
func (m *Manager) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Active:          make(map[string]ActiveTransfer, len(m.active)),
		Completed:       len(m.completed),
		CompletedURLs:   append([]string(nil), m.completed...),
		Failed:          len(m.failed),
		FailedURLs:      append([]string(nil), m.failed...),
		RetryCounts:     make(map[string]int, len(m.retries)),
		Queued:          append([]string(nil), m.pending...),
		DownloadedFiles: append([]string(nil), m.files...),
		IsRemote:        m.dest.IsRemote(),
	}
	for u, at := range m.active {
		s.Active[u] = *at
	}
	for u, n := range m.retries {
		s.RetryCounts[u] = n
	}
	return s
}

// Wait blocks until nothing is queued or active, then returns nil.
// Returns ErrStopped if the manager stops first, or the context error
// if ctx fires. A URL sitting out a retry backoff counts as active, so
// Wait does not return between attempts.
func (m *Manager) Wait(ctx context.Context) error {
	for {
		m.mu.Lock()
		if len(m.pending) == 0 && len(m.active) == 0 {
			m.mu.Unlock()
			return nil
		}
		ch := make(chan struct{})
		m.waiters = append(m.waiters, ch)
		m.mu.Unlock()
		select {
		case <-ch:
		case <-m.stop:
			return ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop prevents further claims and waits up to grace for in-flight
// transfers to wind down. Zero grace waits one second. It reports
// whether every worker exited in time; workers still mid-transfer
// after the grace keep running detached, and whatever they were doing
// is not recorded in the state.
func (m *Manager) Stop(grace time.Duration) bool {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopping = true
		m.mu.Unlock()
		close(m.stop)
	})
	if grace <= 0 {
		grace = time.Second
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	clean := false
	select {
	case <-done:
		clean = true
	case <-time.After(grace):
	}
	m.evOnce.Do(func() { m.emit(ProgressEvent{Event: EventStopped}) })
	return clean
}

// signal wakes one idle worker. The channel holds a single token;
// next re-signals when entries remain, so a lost token never strands
// queued work.
func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		u, ok := m.next(ctx)
		if !ok {
			return
		}
		m.process(ctx, u)
	}
}

// next claims the oldest queued URL, moving it into the active map in
// the same critical section so no status read can observe it in both
// places or neither. Blocks while the queue is empty; returns false on
// stop or context cancellation.
func (m *Manager) next(ctx context.Context) (string, bool) {
	for {
		m.mu.Lock()
		if m.stopping {
			m.mu.Unlock()
			return "", false
		}
		if len(m.pending) > 0 {
			u := m.pending[0]
			m.pending = m.pending[1:]
			delete(m.queuedSet, u)
			m.active[u] = &ActiveTransfer{Filename: fileNameFromURL(u)}
			more := len(m.pending) > 0
			m.mu.Unlock()
			if more {
				m.signal()
			}
			return u, true
		}
		m.mu.Unlock()
		select {
		case <-m.wake:
		case <-m.stop:
			return "", false
		case <-ctx.Done():
			return "", false
		}
	}
}

// process runs the full lifecycle for one claimed URL: skip check,
// transfer, optional relay, then the terminal state transition.
func (m *Manager) process(ctx context.Context, rawurl string) {
	name := fileNameFromURL(rawurl)
	remote := m.dest.IsRemote()
	localPath := filepath.Join(m.targetDir, name)
	if remote {
		localPath = filepath.Join(m.staging, name)
	} else if _, err := os.Stat(localPath); err == nil {
		m.finish(rawurl, "", true)
		m.emit(ProgressEvent{Event: EventFileSkip, URL: rawurl, Name: name})
		return
	}

	m.emit(ProgressEvent{Event: EventFileStart, URL: rawurl, Name: name})
	written, err := m.transfer(ctx, rawurl, localPath, m.progressSink(rawurl, name))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.retryOrFail(ctx, rawurl, name, err)
		return
	}

	record := localPath
	if remote && m.fwd != nil {
		record = m.relay(ctx, rawurl, name, localPath)
	}
	m.finish(rawurl, record, false)
	m.emit(ProgressEvent{Event: EventFileDone, URL: rawurl, Name: name, Bytes: written})
}

// relay hands the staged file to the forwarder. On success the staged
// copy is deleted and the remote path recorded; on failure the file is
// left in staging and its local path recorded instead. Relay failures
// never fail the URL and never consume retry budget, since the
// download itself succeeded.
func (m *Manager) relay(ctx context.Context, rawurl, name, localPath string) string {
	m.emit(ProgressEvent{Event: EventForwardStart, URL: rawurl, Name: name})
	if err := m.fwd.Forward(ctx, localPath); err != nil {
		m.emit(ProgressEvent{Event: EventForwardError, URL: rawurl, Name: name, Err: err.Error()})
		return localPath
	}
	os.Remove(localPath)
	m.emit(ProgressEvent{Event: EventForwardDone, URL: rawurl, Name: name})
	return m.dest.Host + ":" + path.Join(m.dest.Path, name)
}

// finish moves rawurl from active to completed. Skipped URLs count as
// completed but contribute no downloaded file.
func (m *Manager) finish(rawurl, recordPath string, skipped bool) {
	m.mu.Lock()
	delete(m.active, rawurl)
	delete(m.retries, rawurl)
	if _, ok := m.completedSet[rawurl]; !ok {
		m.completedSet[rawurl] = struct{}{}
		m.completed = append(m.completed, rawurl)
	}
	if !skipped && recordPath != "" {
		m.files = append(m.files, recordPath)
	}
	m.notifyLocked()
	m.mu.Unlock()
}

// retryOrFail either re-queues rawurl after a backoff or marks it
// failed. The URL stays claimed (active) while the worker sleeps, so
// status readers see it accounted for throughout. Once a URL fails for
// good its retry record is dropped.
func (m *Manager) retryOrFail(ctx context.Context, rawurl, name string, cause error) {
	m.mu.Lock()
	n := m.retries[rawurl]
	if IsRetryable(cause) && n < m.cfg.MaxRetries {
		m.retries[rawurl] = n + 1
		if at := m.active[rawurl]; at != nil {
			at.Bytes, at.Total = 0, 0
		}
		m.mu.Unlock()
		m.emit(ProgressEvent{Event: EventRetry, URL: rawurl, Name: name, Attempt: n + 1, Err: cause.Error()})
		requeue := sleepCtx(ctx, m.stop, m.retry.delay(n))
		m.mu.Lock()
		delete(m.active, rawurl)
		m.pending = append(m.pending, rawurl)
		m.queuedSet[rawurl] = struct{}{}
		m.mu.Unlock()
		if requeue {
			m.signal()
		}
		return
	}

	delete(m.retries, rawurl)
	delete(m.active, rawurl)
	if _, ok := m.failedSet[rawurl]; !ok {
		m.failedSet[rawurl] = struct{}{}
		m.failed = append(m.failed, rawurl)
	}
	m.notifyLocked()
	m.mu.Unlock()
	m.emit(ProgressEvent{Event: EventFileError, URL: rawurl, Name: name, Attempt: n, Err: cause.Error()})
}

// notifyLocked releases Wait callers once the pipeline is empty.
func (m *Manager) notifyLocked() {
	if len(m.pending) > 0 || len(m.active) > 0 {
		return
	}
	for _, ch := range m.waiters {
		close(ch)
	}
	m.waiters = nil
}

// progressSink returns the per-chunk callback for one transfer. Every
// chunk updates the active entry; emitted events are throttled, with
// the first and last chunk always passed through.
func (m *Manager) progressSink(rawurl, name string) func(written, total int64) {
	var last time.Time
	return func(written, total int64) {
		m.mu.Lock()
		if at, ok := m.active[rawurl]; ok {
			at.Bytes, at.Total = written, total
		}
		m.mu.Unlock()
		if m.progress == nil {
			return
		}
		now := time.Now()
		if written > 0 && written != total && now.Sub(last) < progressInterval {
			return
		}
		last = now
		m.emit(ProgressEvent{Event: EventFileProgress, URL: rawurl, Name: name, Bytes: written, Total: total})
	}
}

func (m *Manager) emit(ev ProgressEvent) {
	if m.progress == nil {
		return
	}
	ev.Time = time.Now()
	m.progress(ev)
}
