package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/slotkeeper/internal/httpserver/deps"
	"github.com/MrSnakeDoc/slotkeeper/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/slotkeeper/internal/httpserver/mw"
)

func init() { Register(registerHealth) }

func registerHealth(r chi.Router, d deps.Deps) {
	allow := mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger)
	r.With(allow).Get("/healthz", handlers.Healthz(d))
	r.With(allow).Get("/readyz", handlers.Readyz(d))
}
