// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package updater

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dwSampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>DistroWatch.com: Release announcements</title>
    <item><title>Fedora 42</title></item>
    <item><title>Ubuntu 24.04.2</title></item>
    <item><title>KDE neon 20250820</title></item>
    <item><title> Arch Linux 2025.08.01 </title></item>
    <item><title>Tails</title></item>
  </channel>
</rss>`

func TestDistroWatchVersions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, dwSampleFeed)
	}))
	defer srv.Close()

	got, err := DistroWatchVersions(context.Background(), fixedClient(srv.Client()), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Fedora":     "42",
		"Ubuntu":     "24.04.2",
		"KDE neon":   "20250820",
		"Arch Linux": "2025.08.01",
	}, got, "multi-word names split on the last space; titles without one are skipped")
}

func TestDistroWatchVersionsBadXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `this is not xml`)
	}))
	defer srv.Close()

	_, err := DistroWatchVersions(context.Background(), fixedClient(srv.Client()), srv.URL)
	assert.ErrorContains(t, err, "parse feed")
}

func TestDistroWatchVersionsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := DistroWatchVersions(context.Background(), fixedClient(srv.Client()), srv.URL)
	assert.Error(t, err)
}
