package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/dispatchprobe/internal/httpserver/deps"
	"github.com/MrSnakeDoc/dispatchprobe/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/dispatchprobe/internal/httpserver/mw"
)

func init() { Register("prune", registerPrune) }

func registerPrune(r chi.Router, d deps.Deps) {
	r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger), mw.EnforceHost(d.AllowedHosts, d.Logger)).Post("/prune", handlers.Prune(d))
}
