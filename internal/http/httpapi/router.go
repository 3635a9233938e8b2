package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"monteur/internal/http/handlers"
	"monteur/internal/middleware"
)

// RouterOptions carries the middleware settings.
type RouterOptions struct {
	Logger             zerolog.Logger
	DefaultLocale      string
	CountryLookup      middleware.CountryLookup
	CORSAllowedOrigins []string
	RateLimitPerMinute int
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSAllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/gallery", app.ListGallery)

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMinute, time.Minute))
		r.Post("/static-images", app.GenerateStaticImage)
		r.Post("/gallery/{id}/static-image", app.GenerateGalleryStaticImage)
	})

	return r
}
