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

func TestOpenSUSELatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/distribution/leap/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<a href="15.5/">15.5/</a>
<a href="15.6/">15.6/</a>
<a href="16.0/">16.0/</a>
<a href="42.3/">42.3/</a>`)
	}))
	defer srv.Close()
	o := NewOpenSUSE(fixedClient(srv.Client()))
	o.base = srv.URL

	vs, err := o.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Versions{
		{Channel: "Leap", Value: "42.3"},
		{Channel: "Tumbleweed", Value: "latest"},
	}, vs)
}

func TestOpenSUSELatestFallback(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	o := NewOpenSUSE(fixedClient(nil))
	o.base = srv.URL

	vs, err := o.Latest(context.Background())
	require.NoError(t, err, "an unreachable mirror falls back instead of failing")
	assert.Equal(t, Versions{
		{Channel: "Leap", Value: fallbackLeap},
		{Channel: "Tumbleweed", Value: "latest"},
	}, vs)
}

func TestOpenSUSELinks(t *testing.T) {
	o := NewOpenSUSE(fixedClient(nil))
	o.base = "https://download.opensuse.org"

	vs := Versions{{Channel: "Leap", Value: "16.0"}, {Channel: "Tumbleweed", Value: "latest"}}
	groups, err := o.Links(context.Background(), vs)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "openSUSE Leap 16.0", groups[0].Heading)
	require.Len(t, groups[0].Entries, 1)
	assert.Equal(t, "openSUSE-Leap-16.0-DVD-x86_64-Media.iso", groups[0].Entries[0].Name)
	assert.Equal(t, "https://download.opensuse.org/distribution/leap/16.0/iso/openSUSE-Leap-16.0-DVD-x86_64-Media.iso", groups[0].Entries[0].URL)

	assert.Equal(t, "openSUSE Tumbleweed", groups[1].Heading)
	assert.Equal(t, "https://download.opensuse.org/tumbleweed/iso/openSUSE-Tumbleweed-DVD-x86_64-Current.iso", groups[1].Entries[0].URL)
}

func TestOpenSUSEUpdateSection(t *testing.T) {
	o := NewOpenSUSE(fixedClient(nil))
	groups, err := o.Links(context.Background(), Versions{{Channel: "Tumbleweed", Value: "latest"}})
	require.NoError(t, err)

	doc := []byte("## openSUSE\n\n- [stale](https://example.com/stale.iso)\n")
	got := string(o.UpdateSection(doc, nil, groups))
	assert.Contains(t, got, "<!-- Auto-updated: "+testStamp+" -->")
	assert.Contains(t, got, "### openSUSE Tumbleweed")
	assert.NotContains(t, got, "stale.iso")
}
