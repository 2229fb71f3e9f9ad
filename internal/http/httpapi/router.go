package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"genstudio/internal/http/handlers"
	"genstudio/internal/middleware"
)

// Options configures the router.
type Options struct {
	JWTSecret       string
	CORSOrigins     []string
	DefaultLocale   string
	RateLimitPerMin int
	Logger          zerolog.Logger
	// Static serves signed storage URLs under /static/. Nil when objects are
	// delivered by a remote store.
	Static http.Handler
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale),
	)

	// Public
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Handle("/metrics", promhttp.Handler())
	if opts.Static != nil {
		r.Handle("/static/*", opts.Static)
	}

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.AuthJWT(opts.JWTSecret),
			middleware.RateLimitBy(opts.RateLimitPerMin, time.Minute, middleware.OwnerOrIP),
		)

		r.Route("/v1/models", func(r chi.Router) {
			r.Get("/", app.ListModels)
			r.Get("/{id}/requirements", app.ModelRequirements)
		})

		r.Route("/v1/generations", func(r chi.Router) {
			r.Post("/", app.CreateGeneration)
			r.Get("/{id}", app.GetGeneration)
			r.Get("/{id}/events", app.GenerationEvents)
			r.Post("/{id}/cancel", app.CancelGeneration)
		})

		r.Route("/v1/assets", func(r chi.Router) {
			r.Get("/{id}", app.GetAsset)
			r.Get("/{id}/url", app.AssetURL)
		})

		r.Post("/v1/delivery-urls", app.DeliveryURLs)
	})

	return r
}
