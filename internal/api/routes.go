package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouteOptions struct {
	CORSOrigins    []string
	RateLimitRPM   int
	RequestTimeout time.Duration
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

func (h *Handler) Routes(m *Middleware, opts RouteOptions) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(m.Compress)
	if opts.RequestTimeout > 0 {
		r.Use(m.Timeout(opts.RequestTimeout))
	}
	r.Use(middleware.Heartbeat("/ping"))

	// CORS and rate limiting - configured from main
	r.Use(m.CORS(opts.CORSOrigins))
	r.Use(m.RateLimit(opts.RateLimitRPM))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/", h.APIIndex)
		r.Get("/list", h.LegacyList)
		r.Get("/health", h.APIHealth)

		r.Route("/blog", func(r chi.Router) {
			r.Get("/", h.BlogIndex)

			r.Route("/articles", func(r chi.Router) {
				r.Get("/", h.ListArticles)
				r.Post("/", h.CreateArticle)
				r.Get("/{id}", h.GetArticle)
				r.Put("/{id}", h.UpdateArticle)
				r.Delete("/{id}", h.DeleteArticle)
			})

			r.Get("/categories", h.ListCategories)
			r.Get("/authors", h.ListAuthors)
		})
	})

	// Server-rendered pages
	r.Route("/blog", func(r chi.Router) {
		r.Get("/", h.BlogPage)
		r.Get("/articles/{id}", h.ArticlePage)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, Envelope{
			Success: false,
			Message: "not found: " + r.URL.Path,
			Code:    "NOT_FOUND",
		})
	})

	return r
}
