package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/slotkeeper/internal/httpserver/deps"
	"github.com/MrSnakeDoc/slotkeeper/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/slotkeeper/internal/httpserver/mw"
)

func init() { Register(registerFacilities) }

func registerFacilities(r chi.Router, d deps.Deps) {
	r.Route("/api", func(r chi.Router) {
		r.Use(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
		r.Get("/facilities", handlers.Facilities(d))
		r.Get("/facilities/{name}/availability", handlers.Availability(d))
		r.Get("/events", handlers.Events(d))
	})
}
