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

// newUbuntuServer serves both the releases.ubuntu.com index and the
// cdimage flavor directories from one mux; the test points both base
// URLs at it.
func newUbuntuServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<a href="22.04/">22.04/</a>
<a href="24.04/">24.04/</a>
<a href="24.04/">24.04 again</a>
<a href="24.10/">24.10/</a>
<a href="torrents/">torrents/</a>`)
	})
	for _, version := range []string{"24.04", "24.10"} {
		version := version
		mux.HandleFunc("/"+version+"/", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `<a href="ubuntu-%s-desktop-amd64.iso">desktop</a>
<a href="ubuntu-%s-live-server-amd64.iso">server</a>`, version, version)
		})
		mux.HandleFunc("/kubuntu/releases/"+version+"/release/", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `<a href="kubuntu-%s-desktop-amd64.iso">desktop</a>`, version)
		})
		mux.HandleFunc("/xubuntu/releases/"+version+"/release/", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `<a href="xubuntu-%s-desktop-amd64.iso">desktop</a>`, version)
		})
	}
	// Lubuntu publishes no 24.10 build; its directory exists only for
	// the LTS release. Budgie and MATE are absent entirely.
	mux.HandleFunc("/lubuntu/releases/24.04/release/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="lubuntu-24.04-desktop-amd64.iso">desktop</a>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestUbuntu(t *testing.T) (*Ubuntu, *httptest.Server) {
	t.Helper()
	srv := newUbuntuServer(t)
	u := NewUbuntu(fixedClient(srv.Client()))
	u.releases = srv.URL
	u.cdimage = srv.URL
	return u, srv
}

func TestUbuntuLatest(t *testing.T) {
	u, _ := newTestUbuntu(t)

	vs, err := u.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Versions{
		{Channel: "lts", Value: "24.04"},
		{Channel: "latest", Value: "24.10"},
	}, vs)
}

func TestUbuntuLatestLTSIsNewest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="22.04/">22.04/</a><a href="24.04/">24.04/</a>`)
	}))
	defer srv.Close()
	u := NewUbuntu(fixedClient(srv.Client()))
	u.releases = srv.URL

	vs, err := u.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Versions{{Channel: "lts", Value: "24.04"}}, vs, "no interim entry when the LTS is the newest release")
}

func TestUbuntuLatestNoLTS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="24.10/">24.10/</a>`)
	}))
	defer srv.Close()
	u := NewUbuntu(fixedClient(srv.Client()))
	u.releases = srv.URL

	_, err := u.Latest(context.Background())
	assert.ErrorContains(t, err, "no LTS releases")
}

func TestUbuntuLinks(t *testing.T) {
	u, srv := newTestUbuntu(t)

	vs := Versions{{Channel: "lts", Value: "24.04"}, {Channel: "latest", Value: "24.10"}}
	groups, err := u.Links(context.Background(), vs)
	require.NoError(t, err)

	var headings []string
	for _, g := range groups {
		headings = append(headings, g.Heading)
	}
	assert.Equal(t, []string{
		"Kubuntu 24.04 LTS",
		"Lubuntu 24.04 LTS",
		"Ubuntu 24.04 LTS",
		"Xubuntu 24.04 LTS",
		"Kubuntu 24.10",
		"Ubuntu 24.10",
		"Xubuntu 24.10",
	}, headings, "flavors alphabetical per release, missing flavors skipped, LTS label only on the lts channel")

	for _, g := range groups {
		require.Len(t, g.Entries, 1)
		assert.Contains(t, g.Entries[0].Name, "desktop-amd64.iso", "the desktop image wins over the server image")
	}
	assert.Equal(t, srv.URL+"/24.04/ubuntu-24.04-desktop-amd64.iso", groups[2].Entries[0].URL)
}

func TestUbuntuLinksAllDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	u := NewUbuntu(fixedClient(srv.Client()))
	u.releases = srv.URL
	u.cdimage = srv.URL

	_, err := u.Links(context.Background(), Versions{{Channel: "lts", Value: "24.04"}})
	assert.Error(t, err)
}

func TestUbuntuUpdateSection(t *testing.T) {
	u, _ := newTestUbuntu(t)

	ctx := context.Background()
	vs, err := u.Latest(ctx)
	require.NoError(t, err)
	groups, err := u.Links(ctx, vs)
	require.NoError(t, err)

	doc := []byte("## Ubuntu\n\n- [stale](https://example.com/stale.iso)\n")
	got := string(u.UpdateSection(doc, vs, groups))
	assert.Contains(t, got, "<!-- Auto-updated: "+testStamp+" -->")
	assert.Contains(t, got, "### Ubuntu 24.04 LTS")
	assert.Contains(t, got, "### Kubuntu 24.10")
	assert.NotContains(t, got, "stale.iso")

	assert.Equal(t, doc, u.UpdateSection(doc, vs, nil), "empty groups leave the document alone")
}
