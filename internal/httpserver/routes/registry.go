// Package routes holds the route groups. Each file registers its group from
// init(), so adding an endpoint never touches the server.
package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/dispatchprobe/internal/httpserver/deps"
)

type (
	Registrar  func(r chi.Router, d deps.Deps)
	Middleware = func(http.Handler) http.Handler
)

type group struct {
	name  string
	mount Registrar
	mws   []Middleware
}

var groups []group

// Register adds a named route group with optional group-wide middlewares.
func Register(name string, reg Registrar, mws ...Middleware) {
	groups = append(groups, group{name: name, mount: reg, mws: mws})
}

// RegisterAll mounts every group in registration order and returns their names.
func RegisterAll(r chi.Router, d deps.Deps) []string {
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		target := r
		if len(g.mws) > 0 {
			target = r.With(g.mws...)
		}
		g.mount(target, d)
		names = append(names, g.name)
	}
	return names
}
