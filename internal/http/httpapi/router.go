package httpapi

import (
	"net/http"
	"time"

	"server/internal/http/handlers"
	"server/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(app.Config.AllowedOrigins),
	)

	// Unauthenticated surface. The webhook authenticates with its own
	// body signature, static assets with signed URLs.
	r.Get("/v1/healthz", app.Health)
	r.Post("/v1/webhooks/replicate", app.WebhookReplicate)
	r.Get("/static/*", app.StaticAsset)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity)
		r.Use(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute))

		r.Route("/v1/generations", func(r chi.Router) {
			r.Post("/", app.GenerationsCreate)
			r.Get("/{id}", app.GenerationStatus)
			r.Post("/{id}/cancel", app.GenerationCancel)
		})

		r.Route("/v1/renders", func(r chi.Router) {
			r.Get("/{id}", app.RenderGet)
			r.Get("/{id}/download", app.RenderDownload)
		})

		r.Post("/v1/uploads", app.UploadInput)
		r.Get("/v1/usage", app.Usage)
	})

	return r
}
