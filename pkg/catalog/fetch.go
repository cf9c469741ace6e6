// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Well-known locations of the shared image collection.
const (
	// DefaultFileName is the catalog document inside the repository.
	DefaultFileName = "README.md"

	// DefaultRawURL serves the document without a git checkout.
	DefaultRawURL = "https://raw.githubusercontent.com/pljakobs/Linux-ISO-Downloads_URL-Collection/main/README.md"
)

// Syncer refreshes a checkout of the catalog repository and returns
// the checkout directory.
type Syncer interface {
	Sync(ctx context.Context) (string, error)
}

// Source describes where to load the catalog from. Fields are tried in
// order: a local file override, then a repository checkout, then the
// raw HTTP fallback.
type Source struct {
	// Path reads the document from a local file and nothing else.
	Path string

	// Syncer clones or updates the catalog repository.
	Syncer Syncer

	// FileName inside the checkout. Default DefaultFileName.
	FileName string

	// RawURL is the HTTP fallback. Default DefaultRawURL.
	RawURL string

	// Client serves the HTTP fallback. Default http.DefaultClient.
	Client *http.Client

	// CacheDir keeps the fetched document and its Last-Modified stamp
	// for revalidation with If-Modified-Since on the next fetch.
	// Empty disables the cache.
	CacheDir string
}

// Fetch loads the raw catalog document. The second return names the
// mechanism that produced it: "file", "git" or "http".
func Fetch(ctx context.Context, src Source) ([]byte, string, error) {
	if src.Path != "" {
		b, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, "", fmt.Errorf("read catalog %s: %w", src.Path, err)
		}
		return b, "file", nil
	}

	var gitErr error
	if src.Syncer != nil {
		dir, err := src.Syncer.Sync(ctx)
		if err == nil {
			name := src.FileName
			if name == "" {
				name = DefaultFileName
			}
			b, rerr := os.ReadFile(filepath.Join(dir, name))
			if rerr == nil {
				return b, "git", nil
			}
			err = rerr
		}
		gitErr = err
	}

	b, httpErr := fetchHTTP(ctx, src)
	if httpErr == nil {
		return b, "http", nil
	}
	if gitErr != nil {
		return nil, "", errors.Join(gitErr, httpErr)
	}
	return nil, "", httpErr
}

// Cache file names inside Source.CacheDir.
const (
	cacheFileName  = "catalog.md"
	cacheStampName = "catalog.md.modified"
)

func fetchHTTP(ctx context.Context, src Source) ([]byte, error) {
	rawURL := src.RawURL
	if rawURL == "" {
		rawURL = DefaultRawURL
	}
	client := src.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	cached, stamp := readCache(src.CacheDir)
	if cached != nil && stamp != "" {
		req.Header.Set("If-Modified-Since", stamp)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		return cached, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog %s: unexpected status %s", rawURL, resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("fetch catalog %s: %w", rawURL, err)
	}
	writeCache(src.CacheDir, b, resp.Header.Get("Last-Modified"))
	return b, nil
}

// readCache returns the cached document and its Last-Modified stamp.
// A document without a stamp is returned with an empty stamp and never
// triggers a conditional request.
func readCache(dir string) ([]byte, string) {
	if dir == "" {
		return nil, ""
	}
	b, err := os.ReadFile(filepath.Join(dir, cacheFileName))
	if err != nil {
		return nil, ""
	}
	stamp, err := os.ReadFile(filepath.Join(dir, cacheStampName))
	if err != nil {
		return b, ""
	}
	return b, strings.TrimSpace(string(stamp))
}

// writeCache stores the document for later revalidation. Best effort:
// an unwritable cache dir only costs the next run a full download.
func writeCache(dir string, b []byte, lastModified string) {
	if dir == "" || lastModified == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(dir, cacheFileName), b, 0o644); err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(dir, cacheStampName), []byte(lastModified), 0o644)
}
