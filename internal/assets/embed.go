// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package assets embeds the static files of the download web UI.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed static/*
var staticFiles embed.FS

// StaticFS returns the UI files rooted at the directory the file
// server expects, so "/" resolves to index.html.
func StaticFS() fs.FS {
	sub, _ := fs.Sub(staticFiles, "static")
	return sub
}
