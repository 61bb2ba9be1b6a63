// Package web holds the embedded status page.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/* static/*
var content embed.FS

// StaticFS returns the stylesheet and script served under /static
func StaticFS() fs.FS {
	staticFS, err := fs.Sub(content, "static")
	if err != nil {
		panic(err)
	}
	return staticFS
}

// IndexPage returns the status page markup
func IndexPage() ([]byte, error) {
	return content.ReadFile("templates/index.html")
}
