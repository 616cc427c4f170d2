package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"go.uber.org/zap"

	"github.com/bookgate/bookgate/pkg/bookgate"
)

// NewRouter assembles the full API: admin endpoints under /api/admin
// (admin tokens only) and reader endpoints under /api/library. Every
// route requires a verified identity token signed with jwtSecret.
func NewRouter(service bookgate.Service, jwtSecret string, logger *zap.Logger) chi.Router {
	tokenAuth := NewTokenAuth(jwtSecret)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", healthHandler)

	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Use(jwtauth.Authenticator)

		r.Route("/api", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Mount("/admin", NewAdminHandler(service).Routes())
			})
			r.Mount("/library", NewLibraryHandler(service, logger).Routes())
		})
	})

	return r
}
