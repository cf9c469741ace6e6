// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pljakobs/distroget/pkg/catalog"
)

// DownloadRequest is the body of POST /api/downloads. URLs are fetched
// as-is; paths name catalog sections or the whole catalog subtree they
// point at ("Fedora/Fedora Spins"). Where files land is server-side
// configuration, not part of the request.
type DownloadRequest struct {
	URLs  []string `json:"urls,omitempty"`
	Paths []string `json:"paths,omitempty"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// catalogSection mirrors one catalog heading for the API.
type catalogSection struct {
	Title    string           `json:"title"`
	Images   []catalogImage   `json:"images,omitempty"`
	Sections []catalogSection `json:"sections,omitempty"`
}

type catalogImage struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleCatalog returns the image catalog as a nested JSON tree, in
// document order.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalog(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "catalog unavailable", err.Error())
		return
	}
	sections := make([]catalogSection, 0, len(c.Sections()))
	for _, n := range c.Sections() {
		sections = append(sections, sectionJSON(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sections": sections,
		"count":    c.Len(),
	})
}

func sectionJSON(n *catalog.Node) catalogSection {
	out := catalogSection{Title: n.Title}
	for _, e := range n.Entries {
		out.Images = append(out.Images, catalogImage{Name: e.Name, URL: e.URL})
	}
	for _, child := range n.Children {
		out.Sections = append(out.Sections, sectionJSON(child))
	}
	return out
}

// handleCreateDownload resolves the request to URLs, registers a job
// and queues it on the engine. Duplicate URLs are answered with the
// job already covering them.
func (s *Server) handleCreateDownload(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	urls := append([]string(nil), req.URLs...)
	if len(req.Paths) > 0 {
		c, err := s.catalog(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, "catalog unavailable", err.Error())
			return
		}
		for _, p := range req.Paths {
			n := c.Find(splitCatalogPath(p)...)
			if n == nil {
				writeError(w, http.StatusBadRequest, "unknown catalog path", p)
				return
			}
			urls = append(urls, n.URLs()...)
		}
	}

	if len(urls) == 0 {
		writeError(w, http.StatusBadRequest, "nothing to download", "provide urls or paths")
		return
	}
	for _, u := range urls {
		if !validDownloadURL(u) {
			writeError(w, http.StatusBadRequest, "unsupported url", u)
			return
		}
	}

	if s.mgr == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not running", "")
		return
	}

	job, existing := s.jobs.Create(urls)
	if existing {
		writeJSON(w, http.StatusOK, map[string]any{
			"job":     job,
			"message": "already submitted",
		})
		return
	}
	s.mgr.Add(job.URLs()...)
	writeJSON(w, http.StatusAccepted, job)
}

// handleListJobs returns every job in creation order.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// handleGetJob returns one job.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok := s.jobs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found", id)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleStatus reports the live engine snapshot plus connection info.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"engine":     s.engineStatus(),
		"ws_clients": s.hub.ClientCount(),
		"output_dir": s.cfg.OutputDir,
	})
}

// splitCatalogPath turns "Fedora/Fedora Spins" into heading titles.
func splitCatalogPath(p string) []string {
	var parts []string
	for _, seg := range strings.Split(p, "/") {
		seg = strings.TrimSpace(seg)
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}

func validDownloadURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}
