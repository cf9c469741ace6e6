// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the catalog and the transfer engine over
// HTTP: a REST API, a WebSocket feed of progress events and an
// embedded single-page UI. One engine manager serves all requests, so
// concurrent clients share the worker pool and the per-URL dedupe.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pljakobs/distroget/internal/assets"
	"github.com/pljakobs/distroget/internal/logger"
	"github.com/pljakobs/distroget/pkg/catalog"
	"github.com/pljakobs/distroget/pkg/distroget"
)

const (
	shutdownTimeout = 10 * time.Second
	engineGrace     = 2 * time.Second

	// catalogTTL bounds how often the upstream catalog is re-fetched.
	catalogTTL = 5 * time.Minute
)

// Config holds the server configuration. The output directory is
// fixed here and never taken from requests.
type Config struct {
	Addr      string
	Port      int
	OutputDir string
	Settings  distroget.Settings
	Catalog   catalog.Source
}

// Server drives the engine on behalf of HTTP and WebSocket clients.
type Server struct {
	cfg  Config
	jobs *JobManager
	hub  *WSHub
	mgr  *distroget.Manager

	httpServer *http.Server

	catMu    sync.Mutex
	cached   *catalog.Catalog
	cachedAt time.Time
}

// New creates a server. The engine starts in ListenAndServe.
func New(cfg Config) *Server {
	hub := NewWSHub()
	return &Server{
		cfg:  cfg,
		hub:  hub,
		jobs: NewJobManager(hub),
	}
}

// ListenAndServe starts the engine and serves until ctx is cancelled,
// then shuts down gracefully and drains the engine.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mgr, err := distroget.New(distroget.Destination{Dir: s.cfg.OutputDir}, s.cfg.Settings, s.onEvent)
	if err != nil {
		return err
	}
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	s.mgr = mgr

	go s.hub.Run(ctx)

	mux := http.NewServeMux()
	s.routes(mux)

	addr := net.JoinHostPort(s.cfg.Addr, strconv.Itoa(s.cfg.Port))
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.logRequests(mux),
		// No write timeout: /ws connections outlive any sane value.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.httpServer.Shutdown(sctx)
	}()

	logger.Info("server listening", logger.Fields{
		"addr":   addr,
		"output": s.cfg.OutputDir,
	})

	err = s.httpServer.ListenAndServe()
	s.mgr.Stop(engineGrace)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/catalog", s.handleCatalog)
	mux.HandleFunc("POST /api/downloads", s.handleCreateDownload)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.Handle("/", http.FileServer(http.FS(assets.StaticFS())))
}

// onEvent is the engine's progress callback: every event updates the
// owning job and goes out over the socket.
func (s *Server) onEvent(ev distroget.ProgressEvent) {
	s.jobs.Apply(ev)
	s.hub.BroadcastEvent(ev)
}

// engineStatus returns the engine snapshot, or an empty one before
// the engine is up.
func (s *Server) engineStatus() distroget.Snapshot {
	if s.mgr == nil {
		return distroget.Snapshot{}
	}
	return s.mgr.Status()
}

// catalog returns the parsed catalog, re-fetching it at most every
// catalogTTL. A failed refresh falls back to the previous copy so a
// flaky upstream does not take the browse API down with it.
func (s *Server) catalog(ctx context.Context) (*catalog.Catalog, error) {
	s.catMu.Lock()
	defer s.catMu.Unlock()

	if s.cached != nil && time.Since(s.cachedAt) < catalogTTL {
		return s.cached, nil
	}

	data, mechanism, err := catalog.Fetch(ctx, s.cfg.Catalog)
	if err != nil {
		if s.cached != nil {
			logger.Warn("catalog refresh failed, serving cached copy", logger.Fields{
				"error": err.Error(),
			})
			return s.cached, nil
		}
		return nil, err
	}
	c, err := catalog.ParseBytes(data)
	if err != nil {
		return nil, err
	}
	logger.Debug("catalog loaded", logger.Fields{
		"via":    mechanism,
		"images": c.Len(),
	})
	s.cached, s.cachedAt = c, time.Now()
	return c, nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http request", logger.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).Round(time.Millisecond).String(),
		})
	})
}
