package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kiranshivaraju/pdfgate/internal/api/handler"
	mw "github.com/kiranshivaraju/pdfgate/internal/api/middleware"
	"github.com/kiranshivaraju/pdfgate/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Logger      *slog.Logger
	TrustProxy  bool
	CORSOrigins []string

	Auth  *mw.Auth
	Quota *mw.Quota
	// Throttle runs ahead of Quota on metered routes. Nil disables it.
	Throttle func(http.Handler) http.Handler
	// Identity guards the account routes. Nil leaves them unimplemented.
	Identity func(http.Handler) http.Handler

	Documents *handler.Documents

	LandingHandler  http.HandlerFunc
	DocsHandler     http.HandlerFunc
	RedocHandler    http.HandlerFunc
	OpenAPIHandler  http.HandlerFunc
	HealthHandler   http.HandlerFunc
	StaticHandler   http.Handler
	GenerateKey     http.HandlerFunc
	StripeWebhook   http.HandlerFunc
	UsageHandler    http.HandlerFunc
	Register        http.HandlerFunc
	Dashboard       http.HandlerFunc
	RegenerateKey   http.HandlerFunc
	ManageSubscribe http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", mw.APIKeyHeader,
			handler.AdminTokenHeader, "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", "Retry-After", "X-Request-ID",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
			"X-Original-Size", "X-Compressed-Size", "X-Compression-Ratio"},
		MaxAge: 300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	// Public surface: never authenticated or metered
	r.Get("/", orNotImplemented(deps.LandingHandler))
	r.Get("/docs", orNotImplemented(deps.DocsHandler))
	r.Get("/redoc", orNotImplemented(deps.RedocHandler))
	r.Get("/openapi.json", orNotImplemented(deps.OpenAPIHandler))
	r.Get("/health", orNotImplemented(deps.HealthHandler))
	if deps.StaticHandler != nil {
		r.Handle("/static/*", deps.StaticHandler)
	}
	r.Post("/api/v1/generate-key", orNotImplemented(deps.GenerateKey))
	r.Post("/stripe/webhook", orNotImplemented(deps.StripeWebhook))

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)

		r.Get("/api/v1/usage", orNotImplemented(deps.UsageHandler))

		// Metered document actions
		r.Group(func(r chi.Router) {
			if deps.Throttle != nil {
				r.Use(deps.Throttle)
			}
			r.Use(deps.Quota.Enforce)

			d := deps.Documents
			r.Post("/api/v1/html-to-pdf", documentRoute(d, func(d *handler.Documents) http.HandlerFunc { return d.HTMLToPDF }))
			r.Post("/api/v1/url-to-pdf", documentRoute(d, func(d *handler.Documents) http.HandlerFunc { return d.URLToPDF }))
			r.Post("/api/v1/merge", documentRoute(d, func(d *handler.Documents) http.HandlerFunc { return d.Merge }))
			r.Post("/api/v1/compress", documentRoute(d, func(d *handler.Documents) http.HandlerFunc { return d.Compress }))
			r.Post("/api/v1/split", documentRoute(d, func(d *handler.Documents) http.HandlerFunc { return d.Split }))
			r.Post("/api/v1/watermark", documentRoute(d, func(d *handler.Documents) http.HandlerFunc { return d.Watermark }))
			r.Post("/api/v1/protect", documentRoute(d, func(d *handler.Documents) http.HandlerFunc { return d.Protect }))
		})
	})

	// Identity-verified account routes, not metered
	r.Group(func(r chi.Router) {
		if deps.Identity == nil {
			r.Use(accountsDisabled)
		} else {
			r.Use(deps.Identity)
		}

		r.Post("/api/v1/auth/register", orNotImplemented(deps.Register))
		r.Get("/api/v1/auth/dashboard", orNotImplemented(deps.Dashboard))
		r.Post("/api/v1/auth/regenerate-key", orNotImplemented(deps.RegenerateKey))
		r.Post("/api/v1/manage-subscription", orNotImplemented(deps.ManageSubscribe))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not configured", nil)
	}
}

func documentRoute(d *handler.Documents, pick func(*handler.Documents) http.HandlerFunc) http.HandlerFunc {
	if d == nil {
		return orNotImplemented(nil)
	}
	return pick(d)
}

func accountsDisabled(http.Handler) http.Handler {
	return orNotImplemented(nil)
}
