// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package updater discovers current distribution releases by scraping
// the projects' download mirrors and rewrites the matching catalog
// sections. Each distribution implements the Updater capability;
// Refresh drives any set of them against one document.
package updater

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pljakobs/distroget/pkg/catalog"
)

// Version is one release line of a distribution.
type Version struct {
	// Channel distinguishes parallel lines: "stable"/"testing" for
	// Debian, "lts"/"latest" for Ubuntu, "Leap"/"Tumbleweed" for
	// openSUSE. Empty for plain numbered releases.
	Channel string

	// Value is the version number, or a rolling label like "testing".
	Value string
}

func (v Version) String() string {
	if v.Channel != "" && v.Channel != v.Value {
		return v.Channel + " " + v.Value
	}
	return v.Value
}

// Versions is what an updater discovered upstream.
type Versions []Version

// Group is one catalog subsection to render: a "###" heading plus its
// download links.
type Group struct {
	Heading string
	Entries []catalog.Entry
}

// Updater refreshes one distribution's section of the catalog
// document.
type Updater interface {
	// Name is the registry key and the "##" section title.
	Name() string

	// Latest discovers the upstream release versions.
	Latest(ctx context.Context) (Versions, error)

	// Links expands versions into concrete download groups. A partial
	// result with some groups missing is still returned without error;
	// mirrors go down one directory at a time.
	Links(ctx context.Context, v Versions) ([]Group, error)

	// UpdateSection splices the groups into doc, replacing the
	// distribution's section or appending it when absent. Empty
	// groups leave doc untouched.
	UpdateSection(doc []byte, v Versions, groups []Group) []byte
}

// Client is the shared scraping transport. The zero value is not
// usable; NewClient fills the defaults.
type Client struct {
	http      *http.Client
	userAgent string
	now       func() time.Time
}

// NewClient returns a Client for mirror scraping. httpc may be nil,
// which uses a client with a 10 second timeout matching how long a
// directory listing is worth waiting for.
func NewClient(httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		http:      httpc,
		userAgent: "distroget/2",
		now:       time.Now,
	}
}

// SetNow overrides the clock behind Auto-updated stamps, for refreshing
// a document to a chosen date.
func (c *Client) SetNow(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// get fetches url and returns the body, limited to 4 MiB; mirror
// listings are small and release pages that exceed this are broken.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return b, nil
}

// stamp is today's date for Auto-updated comments.
func (c *Client) stamp() string {
	return c.now().Format("2006-01-02")
}

// All returns every known updater in the order their sections are
// maintained in the catalog.
func All(c *Client) []Updater {
	return []Updater{
		NewFedora(c),
		NewDebian(c),
		NewUbuntu(c),
		NewOpenSUSE(c),
	}
}

// Registry maps distribution names to updaters for lookup by name.
func Registry(c *Client) map[string]Updater {
	reg := make(map[string]Updater)
	for _, u := range All(c) {
		reg[u.Name()] = u
	}
	return reg
}
