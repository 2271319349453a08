package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes registers all admin API routes using chi router
func RegisterRoutes(mux *http.ServeMux, handlers *AdminHandlers) {
	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", NewRouter(handlers)))

	log.Info().Msg("Admin endpoints enabled at /admin/*")
}

// NewRouter builds the admin router, rooted at /
func NewRouter(handlers *AdminHandlers) http.Handler {
	r := chi.NewRouter()
	r.Use(AuthMiddleware)

	r.Get("/stats", handlers.handleStats)
	r.Get("/publications", handlers.handlePublications)
	r.Get("/sessions", handlers.handleSessions)

	r.Route("/collections", func(r chi.Router) {
		r.Get("/", handlers.handleListCollections)

		r.Route("/{collection}", func(r chi.Router) {
			r.Get("/", handlers.handleFind)
			r.Post("/", handlers.handleInsert)
			r.Get("/count", handlers.handleCount)
			r.Get("/{id}", handlers.handleGet)
			r.Patch("/{id}", handlers.handleUpdate)
			r.Put("/{id}", handlers.handleReplace)
			r.Delete("/{id}", handlers.handleRemove)
		})
	})

	return r
}
