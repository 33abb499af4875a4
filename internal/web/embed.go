// Package web holds the admin UI served at /.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var assets embed.FS

// Static returns the UI files rooted at static/.
func Static() http.FileSystem {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		return http.FS(assets)
	}
	return http.FS(sub)
}

// ReadIndex returns index.html, served for every client-side route.
func ReadIndex() ([]byte, error) {
	return assets.ReadFile("static/index.html")
}
