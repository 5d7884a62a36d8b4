// Package site serves the embedded landing page and its collector script.
package site

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CacheControl is sent with every static asset.
const CacheControl = "public, max-age=3600"

//go:embed static/*
var staticFS embed.FS

// FS returns an http.FileSystem rooted at the embedded static directory.
func FS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return http.FS(staticFS)
	}
	return http.FS(sub)
}

// Handler serves the static files with a one hour cache lifetime.
func Handler() http.Handler {
	files := http.FileServer(FS())
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", CacheControl)
		files.ServeHTTP(w, r)
	})
}

// Register mounts the site as the catch-all GET route. Middlewares apply to
// site requests only.
func Register(r chi.Router, middlewares ...func(http.Handler) http.Handler) {
	if r == nil {
		panic("router is nil")
	}
	r.With(middlewares...).Get("/*", Handler().ServeHTTP)
	r.Head("/*", Handler().ServeHTTP)
}
