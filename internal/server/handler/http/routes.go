// Package http provides HTTP routing and middleware configuration
// for the localfirst catalog service.
package http

import (
	"net/http"

	"github.com/datavtar/localfirst/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP handler serving the catalog API, the
// key-value host and, when metrics is non-nil, /metrics.
//
// Routes:
//
//	GET    /api/apps
//	GET    /api/apps/{app}/export
//	POST   /api/apps/{app}/import
//	POST   /api/apps/{app}/reset               (confirm)
//	GET    /api/apps/{app}/settings
//	PUT    /api/apps/{app}/settings
//	GET    /api/apps/{app}/{coll}
//	POST   /api/apps/{app}/{coll}
//	GET    /api/apps/{app}/{coll}/template
//	GET    /api/apps/{app}/{coll}/export
//	POST   /api/apps/{app}/{coll}/import
//	POST   /api/apps/{app}/{coll}/extract
//	GET    /api/apps/{app}/{coll}/{id}
//	PUT    /api/apps/{app}/{coll}/{id}
//	DELETE /api/apps/{app}/{coll}/{id}         (confirm)
//	GET    /api/kv
//	GET    /api/kv/{key}
//	PUT    /api/kv/{key}
//	DELETE /api/kv/{key}
//
// Middleware chain (applied in order):
//  1. RequestID and Recoverer
//  2. WithRequestLogging(logger)
//  3. AllowContentType on request bodies
func NewRouter(
	catalog *CatalogHandler,
	store *KVHandler,
	metrics http.Handler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(chiMiddleware.AllowContentType("application/json", "text/csv", "multipart/form-data", "text/plain"))

		r.Get("/apps", catalog.Apps)
		r.Route("/apps/{app}", func(r chi.Router) {
			r.Get("/export", catalog.Export)
			r.Post("/import", catalog.Import)
			r.With(middleware.RequireConfirm).Post("/reset", catalog.Reset)
			r.Get("/settings", catalog.Settings)
			r.Put("/settings", catalog.SaveSettings)

			r.Route("/{coll}", func(r chi.Router) {
				r.Get("/", catalog.List)
				r.Post("/", catalog.Create)
				r.Get("/template", catalog.Template)
				r.Get("/export", catalog.ExportCollection)
				r.Post("/import", catalog.ImportCollection)
				r.Post("/extract", catalog.Extract)
				r.Get("/{id}", catalog.Get)
				r.Put("/{id}", catalog.Update)
				r.With(middleware.RequireConfirm).Delete("/{id}", catalog.Delete)
			})
		})

		r.Get("/kv", store.Keys)
		r.Get("/kv/{key}", store.Get)
		r.Put("/kv/{key}", store.Put)
		r.Delete("/kv/{key}", store.Delete)
	})

	return r
}
