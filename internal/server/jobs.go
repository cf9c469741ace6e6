// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/pljakobs/distroget/pkg/distroget"
)

// JobStatus is the lifecycle state of a download job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"

	// JobPartial means the job finished with some files downloaded and
	// some failed for good.
	JobPartial JobStatus = "partial"
)

// Per-file states inside a job.
const (
	FileQueued  = "queued"
	FileActive  = "active"
	FileDone    = "done"
	FileSkipped = "skipped"
	FileFailed  = "failed"
)

// JobFile tracks one URL of a job.
type JobFile struct {
	URL     string `json:"url"`
	Name    string `json:"name"`
	Bytes   int64  `json:"bytes"`
	Total   int64  `json:"total"`
	Status  string `json:"status"`
	Retries int    `json:"retries,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (f JobFile) terminal() bool {
	return f.Status == FileDone || f.Status == FileSkipped || f.Status == FileFailed
}

// Job is a batch of URLs submitted together. Its per-file state is
// folded in from engine progress events; the job resolves once every
// file reaches a terminal state.
type Job struct {
	ID        string     `json:"id"`
	Status    JobStatus  `json:"status"`
	Files     []JobFile  `json:"files"`
	Done      int        `json:"done"`
	Failed    int        `json:"failed"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// URLs lists the job's URLs in submission order.
func (j *Job) URLs() []string {
	out := make([]string, len(j.Files))
	for i, f := range j.Files {
		out[i] = f.URL
	}
	return out
}

func (j *Job) clone() *Job {
	c := *j
	c.Files = append([]JobFile(nil), j.Files...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.EndedAt != nil {
		t := *j.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// JobManager is the job registry. All access goes through its lock;
// accessors hand out copies so callers never see a job mid-update.
type JobManager struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string
	byURL map[string]*Job

	listenerMu sync.RWMutex
	listeners  []chan *Job

	hub *WSHub
}

// NewJobManager creates an empty registry broadcasting job updates to
// hub. hub may be nil.
func NewJobManager(hub *WSHub) *JobManager {
	return &JobManager{
		jobs:  make(map[string]*Job),
		byURL: make(map[string]*Job),
		hub:   hub,
	}
}

// generateID creates a short random job ID.
func generateID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Create registers a job for urls. URLs already owned by another job
// are dropped, since the engine runs each URL exactly once; if nothing
// is left the owning job of the first duplicate is returned with
// existing=true and no job is created. The caller queues the returned
// job's URLs on the engine.
func (m *JobManager) Create(urls []string) (job *Job, existing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var files []JobFile
	seen := make(map[string]struct{}, len(urls))
	var owner *Job
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if j, ok := m.byURL[u]; ok {
			if owner == nil {
				owner = j
			}
			continue
		}
		files = append(files, JobFile{
			URL:    u,
			Name:   distroget.FileName(u),
			Status: FileQueued,
		})
	}

	if len(files) == 0 {
		if owner == nil {
			return nil, false
		}
		return owner.clone(), true
	}

	j := &Job{
		ID:        generateID(),
		Status:    JobQueued,
		Files:     files,
		CreatedAt: time.Now(),
	}
	m.jobs[j.ID] = j
	m.order = append(m.order, j.ID)
	for _, f := range files {
		m.byURL[f.URL] = j
	}
	return j.clone(), false
}

// Get retrieves a copy of a job by ID.
func (m *JobManager) Get(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return j.clone(), true
}

// List returns copies of all jobs in creation order.
func (m *JobManager) List() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Job, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.jobs[id].clone())
	}
	return out
}

// Subscribe adds a listener for job updates. Each update delivers a
// copy; slow listeners miss updates rather than block the engine.
func (m *JobManager) Subscribe() chan *Job {
	ch := make(chan *Job, 16)
	m.listenerMu.Lock()
	m.listeners = append(m.listeners, ch)
	m.listenerMu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (m *JobManager) Unsubscribe(ch chan *Job) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	for i, l := range m.listeners {
		if l == ch {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// Apply folds one engine progress event into the owning job. Events
// for URLs no job owns are ignored.
func (m *JobManager) Apply(ev distroget.ProgressEvent) {
	m.mu.Lock()
	j, ok := m.byURL[ev.URL]
	if !ok {
		m.mu.Unlock()
		return
	}
	f := j.file(ev.URL)
	if f == nil {
		m.mu.Unlock()
		return
	}

	switch ev.Event {
	case distroget.EventFileStart:
		f.Status = FileActive
		if j.Status == JobQueued {
			j.Status = JobActive
			t := ev.Time
			j.StartedAt = &t
		}

	case distroget.EventFileProgress:
		f.Bytes, f.Total = ev.Bytes, ev.Total

	case distroget.EventRetry:
		f.Retries = ev.Attempt
		f.Error = ev.Err

	case distroget.EventFileSkip:
		f.Status = FileSkipped

	case distroget.EventFileDone:
		f.Status = FileDone
		f.Bytes = ev.Bytes
		if f.Total == 0 {
			f.Total = ev.Bytes
		}
		f.Error = ""

	case distroget.EventFileError:
		f.Status = FileFailed
		f.Error = ev.Err

	default:
		m.mu.Unlock()
		return
	}

	j.resolve(ev.Time)
	update := j.clone()
	m.mu.Unlock()

	// Notify with the lock released so a listener reading back through
	// the manager cannot deadlock.
	m.notify(update)
}

func (j *Job) file(url string) *JobFile {
	for i := range j.Files {
		if j.Files[i].URL == url {
			return &j.Files[i]
		}
	}
	return nil
}

// resolve recounts outcomes and settles the job status once every file
// is terminal.
func (j *Job) resolve(at time.Time) {
	done, failed, terminal := 0, 0, 0
	for _, f := range j.Files {
		switch f.Status {
		case FileDone, FileSkipped:
			done++
			terminal++
		case FileFailed:
			failed++
			terminal++
		}
	}
	j.Done, j.Failed = done, failed
	if terminal < len(j.Files) {
		return
	}
	switch {
	case failed == 0:
		j.Status = JobCompleted
	case failed == len(j.Files):
		j.Status = JobFailed
	default:
		j.Status = JobPartial
	}
	if j.EndedAt == nil {
		t := at
		j.EndedAt = &t
	}
}

func (m *JobManager) notify(job *Job) {
	m.listenerMu.RLock()
	for _, ch := range m.listeners {
		select {
		case ch <- job:
		default:
		}
	}
	m.listenerMu.RUnlock()

	if m.hub != nil {
		m.hub.BroadcastJob(job)
	}
}
