// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package distroget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDestination(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Destination
	}{
		{name: "empty means cwd", in: "", want: Destination{Dir: "."}},
		{name: "relative dir", in: "isos", want: Destination{Dir: "isos"}},
		{name: "absolute dir", in: "/srv/isos", want: Destination{Dir: "/srv/isos"}},
		{name: "host and path", in: "nas:/srv/isos", want: Destination{Host: "nas", Path: "/srv/isos"}},
		{name: "user at host", in: "storage@nas:/srv/isos", want: Destination{Host: "storage@nas", Path: "/srv/isos"}},
		{name: "host with relative path", in: "nas:isos", want: Destination{Host: "nas", Path: "isos"}},
		{name: "colon later in a path stays local", in: "./odd:name/dir", want: Destination{Dir: "./odd:name/dir"}},
		{name: "absolute path with colon stays local", in: "/data/odd:name", want: Destination{Dir: "/data/odd:name"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDestination(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Host != "", got.IsRemote())
		})
	}
}

func TestDestinationString(t *testing.T) {
	assert.Equal(t, "/srv/isos", Destination{Dir: "/srv/isos"}.String())
	assert.Equal(t, "nas:/srv/isos", Destination{Host: "nas", Path: "/srv/isos"}.String())
}

func TestSettingsWithDefaults(t *testing.T) {
	t.Run("zero value gets defaults", func(t *testing.T) {
		s := Settings{}.withDefaults()
		assert.Equal(t, 3, s.Workers)
		assert.Equal(t, 3, s.MaxRetries)
		assert.Equal(t, time.Second, s.BackoffBase)
		assert.Equal(t, "64KiB", s.ChunkSize)
		assert.Equal(t, 30*time.Second, s.HeaderTimeout)
		assert.Equal(t, "distroget/2", s.UserAgent)
	})

	t.Run("explicit values survive", func(t *testing.T) {
		s := Settings{Workers: 8, MaxRetries: 1, ChunkSize: "1MiB"}.withDefaults()
		assert.Equal(t, 8, s.Workers)
		assert.Equal(t, 1, s.MaxRetries)
		assert.Equal(t, "1MiB", s.ChunkSize)
	})

	t.Run("zero retries falls back to default", func(t *testing.T) {
		s := Settings{MaxRetries: 0}.withDefaults()
		assert.Equal(t, 3, s.MaxRetries)
	})

	t.Run("negative disables retries", func(t *testing.T) {
		s := Settings{MaxRetries: -1}.withDefaults()
		assert.Equal(t, 0, s.MaxRetries)
	})
}
