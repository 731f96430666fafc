// Package web embeds the console page templates and static assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var distFS embed.FS

// Assets returns the embedded assets with dist/ as the root, so templates
// are "index.html" and static files live under "static/".
func Assets() (fs.FS, error) {
	return fs.Sub(distFS, "dist")
}
