package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avelar/fintrack/internal/domain"
	"github.com/avelar/fintrack/pkg/health"
	"github.com/avelar/fintrack/pkg/httputil"
	"github.com/avelar/fintrack/pkg/middleware"
)

// RouterConfig bundles everything the router needs.
type RouterConfig struct {
	Auth         *AuthHandler
	Users        *UserHandler
	Categories   *CategoryHandler
	Transactions *TransactionHandler
	Gate         *Gate
	Health       *health.Handler
	Logger       *slog.Logger

	// UploadsDir, when set, is served read-only under /uploads/.
	UploadsDir string

	// CORSAllowedOrigins and Environment feed the CORS middleware.
	// Wildcard origins are only honored in development.
	CORSAllowedOrigins []string
	Environment        string

	// RateRPS and RateBurst configure the general per-IP rate limit.
	// AuthRateRPS and AuthRateBurst apply a stricter limit to the
	// credential endpoints.
	RateRPS       int
	RateBurst     int
	AuthRateRPS   int
	AuthRateBurst int
}

// NewRouter builds the HTTP router with all routes and middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.CORSAllowedOrigins) > 0 {
		corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	}
	if cfg.Environment != "" {
		corsCfg.Environment = cfg.Environment
	}
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.PrometheusMetrics("fintrack"))

	// In development, 5xx envelopes carry the internal error detail.
	if cfg.Environment == "development" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(httputil.WithDebug(req.Context())))
			})
		})
	}

	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if cfg.UploadsDir != "" {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadsDir)))
		r.Get("/uploads/*", fs.ServeHTTP)
	}

	rateLimit := middleware.RateLimit(cfg.RateRPS, cfg.RateBurst, cfg.Logger)
	authRateLimit := middleware.RateLimit(cfg.AuthRateRPS, cfg.AuthRateBurst, cfg.Logger)
	adminOnly := RequireRole(domain.RoleAdmin, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit)

		// Credential endpoints get a stricter rate limit since they
		// are the brute-force surface.
		r.Group(func(r chi.Router) {
			r.Use(authRateLimit)
			r.Use(ContentTypeJSON)

			r.Post("/auth/register", cfg.Auth.Register)
			r.Post("/auth/login", cfg.Auth.Login)
			r.Post("/auth/refresh-token", cfg.Auth.Refresh)
			r.Post("/auth/forgot-password", cfg.Auth.ForgotPassword)
			r.Post("/auth/reset-password", cfg.Auth.ResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(cfg.Gate.Authenticate)

			r.Post("/auth/logout", cfg.Auth.Logout)
			r.With(ContentTypeJSON).Post("/auth/change-password", cfg.Auth.ChangePassword)
			r.Get("/auth/me", cfg.Users.Me)
			r.With(ContentTypeJSON).Put("/auth/me", cfg.Users.UpdateMe)

			r.Route("/users", func(r chi.Router) {
				r.Use(adminOnly)

				r.Get("/", cfg.Users.List)
				r.Get("/{id}", cfg.Users.Get)
				r.With(ContentTypeJSON).Put("/{id}", cfg.Users.Update)
				r.Delete("/{id}", cfg.Users.Delete)
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", cfg.Transactions.List)
				r.With(ContentTypeJSON).Post("/", cfg.Transactions.Create)
				r.Get("/{id}", cfg.Transactions.Get)
				r.With(ContentTypeJSON).Put("/{id}", cfg.Transactions.Update)
				r.Delete("/{id}", cfg.Transactions.Delete)
				r.Post("/{id}/receipt", cfg.Transactions.UploadReceipt)
			})

			r.Get("/dashboard/stats", cfg.Transactions.Stats)
		})

		// Categories are shared reference data: reads are public, writes
		// are reserved for admins.
		r.Route("/categories", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(cfg.Gate.OptionalAuthenticate)

				r.Get("/", cfg.Categories.List)
				r.Get("/{id}", cfg.Categories.Get)
			})

			r.Group(func(r chi.Router) {
				r.Use(cfg.Gate.Authenticate)
				r.Use(adminOnly)
				r.Use(ContentTypeJSON)

				r.Post("/", cfg.Categories.Create)
				r.Put("/{id}", cfg.Categories.Update)
				r.Delete("/{id}", cfg.Categories.Delete)
			})
		})
	})

	return r
}
