package api

import (
	"net/http"

	sheetstore "github.com/danielGPGT/go-sheetstore"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Options configures the router. Zero values disable the optional parts.
type Options struct {
	Logger         logrus.FieldLogger
	Auth           Authenticator
	Metrics        *Metrics
	AllowedOrigins []string
	APILimit       Limit
	SheetsLimit    Limit
	Params         *sheetstore.ParamOptions // nil uses DefaultParamOptions
}

// NewRouter initialises a new http router and applies all routes
func NewRouter(store Store, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	params := sheetstore.DefaultParamOptions()
	if opts.Params != nil {
		params = *opts.Params
	}
	h := &handler{store: store, params: params, log: opts.Logger}

	r := chi.NewRouter()
	r.Use(RequestID, middleware.Recoverer, SecurityHeaders, CORS(opts.AllowedOrigins), RequestLogger(opts.Logger))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	r.NotFound(notFound)
	r.Get("/healthz", health)

	return applyRoutes(r, h, opts)
}

func applyRoutes(r chi.Router, h *handler, opts Options) chi.Router {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(NewRateLimiter(opts.APILimit, "Too many requests from this IP, please try again later").Middleware)

		r.Route("/sheets", func(r chi.Router) {
			r.Use(NewRateLimiter(opts.SheetsLimit, "Too many sheet operations from this IP, please try again later").Middleware)
			if opts.Auth != nil {
				r.Use(Authenticate(opts.Auth, h))
			}

			r.Get("/{sheet}", h.list)
			r.Post("/{sheet}", h.create)
			r.Get("/{sheet}/columns", h.columns)
			r.Get("/{sheet}/{idColumn}/{idValue}", h.get)
			r.Put("/{sheet}/{idColumn}/{idValue}", h.update)
			r.Delete("/{sheet}/{idColumn}/{idValue}", h.delete)
			r.Put("/{sheet}/{idColumn}/{idValue}/bulk", h.bulk)
		})
	})

	return r
}
