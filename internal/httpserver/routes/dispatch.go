package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/dispatchprobe/internal/httpserver/deps"
	"github.com/MrSnakeDoc/dispatchprobe/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/dispatchprobe/internal/httpserver/mw"
)

func init() { Register("dispatch", registerDispatch) }

func registerDispatch(r chi.Router, d deps.Deps) {
	rl := d.RateLimit
	rl.TrustProxy = d.TrustProxy
	r.With(mw.RateLimit(rl)).Post("/evolution-send-text", handlers.Dispatch(d))
}
