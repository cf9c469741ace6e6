// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package distroget

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain blocks until the queue empties or the test deadline hits.
func drain(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
}

// eventually polls cond until it holds or the deadline hits.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// eventRecorder collects progress events for later inspection.
type eventRecorder struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *eventRecorder) record(e ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) names(url string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if url == "" || e.URL == url {
			out = append(out, e.Event)
		}
	}
	return out
}

// recordingForwarder stands in for scp during tests.
type recordingForwarder struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (f *recordingForwarder) Forward(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.paths = append(f.paths, p)
	return nil
}

func TestManager_DrainAll(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("content of " + r.URL.Path))
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := newTestManager(t, dir, Settings{Workers: 3})
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(time.Second)

	urls := make([]string, 5)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/disk%d.iso", srv.URL, i)
	}
	assert.Equal(t, 5, m.Add(urls...))
	drain(t, m)

	st := m.Status()
	assert.Equal(t, 5, st.Completed)
	assert.Equal(t, 0, st.Failed)
	assert.Empty(t, st.Queued)
	assert.Empty(t, st.Active)
	assert.Empty(t, st.RetryCounts)
	assert.Len(t, st.DownloadedFiles, 5)
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits))

	sort.Strings(st.CompletedURLs)
	sorted := append([]string(nil), urls...)
	sort.Strings(sorted)
	assert.Equal(t, sorted, st.CompletedURLs)

	for i := range urls {
		_, err := os.Stat(filepath.Join(dir, fmt.Sprintf("disk%d.iso", i)))
		assert.NoError(t, err)
	}
}

func TestManager_SkipExisting(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "have.iso"), []byte("old"), 0o644))

	rec := &eventRecorder{}
	m, err := New(Destination{Dir: dir}, Settings{}, rec.record)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(time.Second)

	url := srv.URL + "/have.iso"
	assert.Equal(t, 1, m.Add(url))
	drain(t, m)

	st := m.Status()
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 0, st.Failed)
	assert.Empty(t, st.RetryCounts)
	assert.Empty(t, st.DownloadedFiles, "skips download nothing")
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits), "no request for an existing file")
	assert.Contains(t, rec.names(url), EventFileSkip)

	// Existing file untouched.
	got, err := os.ReadFile(filepath.Join(dir, "have.iso"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	// Re-submitting a completed URL is a no-op.
	assert.Equal(t, 0, m.Add(url))
	st2 := m.Status()
	assert.Equal(t, st.Completed, st2.Completed)
	assert.Equal(t, st.Failed, st2.Failed)
}

func TestManager_RetryThenSucceed(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("finally"))
	}))
	defer srv.Close()

	rec := &eventRecorder{}
	dir := t.TempDir()
	m, err := New(Destination{Dir: dir}, Settings{BackoffBase: time.Millisecond}, rec.record)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(time.Second)

	url := srv.URL + "/flaky.iso"
	m.Add(url)
	drain(t, m)

	st := m.Status()
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 0, st.Failed)
	assert.Empty(t, st.RetryCounts, "retry record cleared on success")
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits), "two failures plus one success")

	names := rec.names(url)
	retries := 0
	for _, n := range names {
		if n == EventRetry {
			retries++
		}
	}
	assert.Equal(t, 2, retries)
	assert.Equal(t, EventQueued, names[0])
	assert.Equal(t, EventFileDone, names[len(names)-1])

	got, err := os.ReadFile(filepath.Join(dir, "flaky.iso"))
	require.NoError(t, err)
	assert.Equal(t, "finally", string(got))
}

func TestManager_RetriesExhausted(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rec := &eventRecorder{}
	m, err := New(Destination{Dir: t.TempDir()}, Settings{BackoffBase: time.Millisecond}, rec.record)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(time.Second)

	url := srv.URL + "/doomed.iso"
	m.Add(url)
	drain(t, m)

	st := m.Status()
	assert.Equal(t, 0, st.Completed)
	assert.Equal(t, 1, st.Failed)
	assert.Contains(t, st.FailedURLs, url)
	assert.Empty(t, st.RetryCounts, "no retry record once a URL fails for good")
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits), "initial attempt plus three retries")
	assert.Contains(t, rec.names(url), EventFileError)
}

func TestManager_TerminalFailureShortCircuits(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m, err := New(Destination{Dir: t.TempDir()}, Settings{BackoffBase: time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(time.Second)

	url := srv.URL + "/missing.iso"
	m.Add(url)
	drain(t, m)

	st := m.Status()
	assert.Equal(t, 1, st.Failed)
	assert.Empty(t, st.RetryCounts)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "client errors get exactly one attempt")
}

func TestManager_SnapshotIsolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	m := newTestManager(t, t.TempDir(), Settings{})
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(time.Second)

	m.Add(srv.URL+"/a.iso", srv.URL+"/b.iso")
	drain(t, m)

	st := m.Status()
	require.Equal(t, 2, st.Completed)

	// Mutating the copy must not leak back into the manager.
	st.CompletedURLs[0] = "vandalized"
	st.RetryCounts["fake"] = 99
	st.Active["fake"] = ActiveTransfer{}
	st.DownloadedFiles = append(st.DownloadedFiles, "bogus")

	fresh := m.Status()
	assert.NotContains(t, fresh.CompletedURLs, "vandalized")
	assert.Empty(t, fresh.RetryCounts)
	assert.Empty(t, fresh.Active)
	assert.Len(t, fresh.DownloadedFiles, 2)
}

func TestManager_StatePartition(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("slow"))
	}))
	defer srv.Close()

	m := newTestManager(t, t.TempDir(), Settings{Workers: 2})
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(time.Second)

	urls := make([]string, 6)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/part%d.iso", srv.URL, i)
	}
	m.Add(urls...)

	// Every snapshot taken while transfers are in flight must place
	// each URL in exactly one state.
	check := func() {
		st := m.Status()
		for _, u := range urls {
			n := 0
			for _, q := range st.Queued {
				if q == u {
					n++
				}
			}
			if _, ok := st.Active[u]; ok {
				n++
			}
			for _, c := range st.CompletedURLs {
				if c == u {
					n++
				}
			}
			for _, f := range st.FailedURLs {
				if f == u {
					n++
				}
			}
			require.Equal(t, 1, n, "url %s seen in %d states", u, n)
		}
	}

	eventually(t, func() bool { return len(m.Status().Active) == 2 }, "two workers should be busy")
	for i := 0; i < 6; i++ {
		check()
		release <- struct{}{}
		check()
	}
	drain(t, m)
	check()

	st := m.Status()
	assert.Equal(t, 6, st.Completed)
}

func TestManager_BackoffKeepsURLClaimed(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	m, err := New(Destination{Dir: t.TempDir()}, Settings{Workers: 1, BackoffBase: 300 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(time.Second)

	url := srv.URL + "/claimed.iso"
	m.Add(url)

	// While the worker sleeps out the backoff the URL stays accounted
	// as claimed, so Wait cannot return between attempts.
	eventually(t, func() bool { return m.Status().RetryCounts[url] == 1 }, "first retry should be recorded")
	st := m.Status()
	_, active := st.Active[url]
	assert.True(t, active, "url must stay claimed during backoff")
	assert.True(t, st.Pending())

	drain(t, m)
	assert.Equal(t, 1, m.Status().Completed)
}

func TestManager_AddDeduplicates(t *testing.T) {
	m := newTestManager(t, t.TempDir(), Settings{})

	assert.Equal(t, 2, m.Add("https://example.com/a.iso", "https://example.com/b.iso"))
	assert.Equal(t, 0, m.Add("https://example.com/a.iso"))
	assert.Equal(t, 0, m.Add(""))

	st := m.Status()
	assert.Equal(t, []string{"https://example.com/a.iso", "https://example.com/b.iso"}, st.Queued)
}

func TestManager_RemoteRelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	staging := t.TempDir()
	fwd := &recordingForwarder{}
	rec := &eventRecorder{}
	m, err := New(Destination{Host: "nas", Path: "/srv/isos"}, Settings{StagingDir: staging}, rec.record)
	require.NoError(t, err)
	m.UseForwarder(fwd)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(time.Second)

	url := srv.URL + "/relay.iso"
	m.Add(url)
	drain(t, m)

	st := m.Status()
	assert.True(t, st.IsRemote)
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 0, st.Failed)
	assert.Equal(t, []string{"nas:/srv/isos/relay.iso"}, st.DownloadedFiles)

	staged := filepath.Join(staging, "relay.iso")
	assert.Equal(t, []string{staged}, fwd.paths)
	_, serr := os.Stat(staged)
	assert.True(t, os.IsNotExist(serr), "staging copy removed after relay")

	names := rec.names(url)
	assert.Contains(t, names, EventForwardStart)
	assert.Contains(t, names, EventForwardDone)
}

func TestManager_RelayFailureKeepsLocalFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	staging := t.TempDir()
	fwd := &recordingForwarder{err: errors.New("scp: connection refused")}
	rec := &eventRecorder{}
	m, err := New(Destination{Host: "nas", Path: "/srv/isos"}, Settings{StagingDir: staging}, rec.record)
	require.NoError(t, err)
	m.UseForwarder(fwd)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(time.Second)

	url := srv.URL + "/stuck.iso"
	m.Add(url)
	drain(t, m)

	st := m.Status()
	assert.Equal(t, 1, st.Completed, "a failed relay does not fail the download")
	assert.Equal(t, 0, st.Failed)
	assert.Empty(t, st.RetryCounts, "relay failures consume no retry budget")

	staged := filepath.Join(staging, "stuck.iso")
	_, serr := os.Stat(staged)
	assert.NoError(t, serr, "staged file kept for manual pickup")
	assert.Equal(t, []string{staged}, st.DownloadedFiles)
	assert.Contains(t, rec.names(url), EventForwardError)
}

func TestManager_StopPreventsNewClaims(t *testing.T) {
	started := make(chan struct{}, 8)
	release := make(chan struct{})
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		started <- struct{}{}
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	m, err := New(Destination{Dir: t.TempDir()}, Settings{Workers: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	m.Add(srv.URL+"/first.iso", srv.URL+"/second.iso", srv.URL+"/third.iso")
	<-started

	clean := m.Stop(50 * time.Millisecond)
	assert.False(t, clean, "worker is mid-transfer, grace must expire")

	close(release)
	eventually(t, func() bool { return m.Status().Completed == 1 }, "straggler should finish")

	st := m.Status()
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "no claims after stop")
	assert.Len(t, st.Queued, 2)
}

func TestManager_AddAfterStop(t *testing.T) {
	m := newTestManager(t, t.TempDir(), Settings{})
	require.NoError(t, m.Start(context.Background()))
	m.Stop(100 * time.Millisecond)

	assert.Equal(t, 1, m.Add("https://example.com/late.iso"))
	time.Sleep(50 * time.Millisecond)

	st := m.Status()
	assert.Equal(t, []string{"https://example.com/late.iso"}, st.Queued)
	assert.Equal(t, 0, st.Completed)
}

func TestManager_StartTwice(t *testing.T) {
	m := newTestManager(t, t.TempDir(), Settings{})
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(time.Second)
	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyStarted)
}

func TestManager_WaitHonorsContext(t *testing.T) {
	m := newTestManager(t, t.TempDir(), Settings{})
	m.Add("https://example.com/never.iso") // no Start, queue never drains

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Wait(ctx), context.DeadlineExceeded)
}

func TestManager_WaitReturnsOnStop(t *testing.T) {
	m := newTestManager(t, t.TempDir(), Settings{})
	m.Add("https://example.com/never.iso")

	go func() {
		time.Sleep(20 * time.Millisecond)
		m.Stop(10 * time.Millisecond)
	}()
	assert.ErrorIs(t, m.Wait(context.Background()), ErrStopped)
}

func TestManager_EventOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("bits"))
	}))
	defer srv.Close()

	rec := &eventRecorder{}
	m, err := New(Destination{Dir: t.TempDir()}, Settings{}, rec.record)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(time.Second)

	url := srv.URL + "/ordered.iso"
	m.Add(url)
	drain(t, m)

	names := rec.names(url)
	require.NotEmpty(t, names)
	assert.Equal(t, EventQueued, names[0])
	assert.Equal(t, EventFileDone, names[len(names)-1])

	idxStart, idxDone := -1, -1
	for i, n := range names {
		switch n {
		case EventFileStart:
			idxStart = i
		case EventFileDone:
			idxDone = i
		}
	}
	require.GreaterOrEqual(t, idxStart, 0)
	assert.Greater(t, idxDone, idxStart)
}
