// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pljakobs/distroget/pkg/distroget"
)

const testCatalogDoc = `# Linux ISO Downloads

## Debian

### Debian 12 GNOME (Stable)
- [Debian Live GNOME](https://cdimage.debian.org/gnome.iso)

## Fedora
- [Fedora Workstation 42](https://fedora.example/f42.iso)

### Fedora Spins
- [Fedora KDE 42](https://fedora.example/kde42.iso)
- [Fedora Xfce 42](https://fedora.example/xfce42.iso)

## Ubuntu
- [Ubuntu 24.04 LTS](https://ubuntu.example/noble.iso)
`

func writeTestCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.md")
	require.NoError(t, os.WriteFile(path, []byte(testCatalogDoc), 0o644))
	return path
}

func TestSplitCatalogPath(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Fedora", []string{"Fedora"}},
		{"Fedora/Fedora Spins", []string{"Fedora", "Fedora Spins"}},
		{"/Debian//Live/", []string{"Debian", "Live"}},
		{" Debian / Testing ", []string{"Debian", "Testing"}},
		{"", nil},
		{"///", nil},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, splitCatalogPath(tc.in), "input %q", tc.in)
	}
}

func TestDedupeURLs(t *testing.T) {
	in := []string{"https://a/1.iso", "https://a/2.iso", "https://a/1.iso", "https://a/3.iso"}
	assert.Equal(t, []string{"https://a/1.iso", "https://a/2.iso", "https://a/3.iso"}, dedupeURLs(in))
	assert.Empty(t, dedupeURLs(nil))
}

func TestDefaultStr(t *testing.T) {
	assert.Equal(t, "fallback", defaultStr("", "fallback"))
	assert.Equal(t, "value", defaultStr("value", "fallback"))
}

func TestResolveTargets(t *testing.T) {
	ctx := context.Background()
	src := writeTestCatalog(t)
	ro := &RootOpts{}

	t.Run("direct urls skip the catalog", func(t *testing.T) {
		urls, err := resolveTargets(ctx, ro, []string{
			"https://example.com/a.iso",
			"https://example.com/a.iso",
			"https://example.com/b.iso",
		}, nil, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"https://example.com/a.iso", "https://example.com/b.iso"}, urls)
	})

	t.Run("catalog path expands to section urls", func(t *testing.T) {
		urls, err := resolveTargets(ctx, ro, []string{"Fedora"}, nil, src)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://fedora.example/f42.iso",
			"https://fedora.example/kde42.iso",
			"https://fedora.example/xfce42.iso",
		}, urls)
	})

	t.Run("nested path", func(t *testing.T) {
		urls, err := resolveTargets(ctx, ro, []string{"Fedora/Fedora Spins"}, nil, src)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://fedora.example/kde42.iso",
			"https://fedora.example/xfce42.iso",
		}, urls)
	})

	t.Run("filters match entry names", func(t *testing.T) {
		urls, err := resolveTargets(ctx, ro, nil, []string{"ubuntu"}, src)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://ubuntu.example/noble.iso"}, urls)
	})

	t.Run("mixed input is deduplicated", func(t *testing.T) {
		urls, err := resolveTargets(ctx, ro,
			[]string{"https://fedora.example/f42.iso", "Fedora"}, nil, src)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://fedora.example/f42.iso",
			"https://fedora.example/kde42.iso",
			"https://fedora.example/xfce42.iso",
		}, urls)
	})

	t.Run("unknown path", func(t *testing.T) {
		_, err := resolveTargets(ctx, ro, []string{"Arch"}, nil, src)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"Arch" not found`)
	})

	t.Run("no matches", func(t *testing.T) {
		_, err := resolveTargets(ctx, ro, nil, []string{"slackware"}, src)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nothing to download")
	})
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, distroget.Snapshot{
		Completed:       3,
		Failed:          1,
		DownloadedFiles: []string{"/tmp/a.iso", "/tmp/b.iso"},
		FailedURLs:      []string{"https://x/c.iso"},
	}, 90*time.Second)

	out := buf.String()
	assert.Contains(t, out, "2 downloaded, 1 skipped, 1 failed in 1m30s")
	assert.Contains(t, out, "failed: https://x/c.iso")
}
