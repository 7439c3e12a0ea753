// Package shim serves the host page and module assets with the headers that
// make the delivery context cross-origin isolated.
package shim

import (
	"net/http"

	"github.com/san-kum/fluidhost/internal/probe"
)

const HeaderCORP = "Cross-Origin-Resource-Policy"

// Isolate sets the embedder, opener and resource policies on every response
// before the wrapped handler runs.
func Isolate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set(probe.HeaderCOEP, probe.RequireCorp)
		h.Set(probe.HeaderCOOP, probe.SameOrigin)
		h.Set(HeaderCORP, probe.SameOrigin)
		next.ServeHTTP(w, r)
	})
}
