// Package swagger serves the embedded OpenAPI document.
package swagger

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Register attaches the OpenAPI document route:
//
//	GET /openapi.yaml -> embedded OpenAPI document
func Register(r chi.Router) {
	if r == nil {
		panic("router is nil")
	}

	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	})
}
