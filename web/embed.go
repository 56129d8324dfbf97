// Package web embeds the single-page UI assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:static
var staticFS embed.FS

// Assets returns the embedded UI filesystem rooted at static/, so files are
// accessed directly (e.g., "index.html" not "static/index.html").
func Assets() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}
