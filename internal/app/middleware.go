package app

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/tradiedesk/tradiedesk/internal/auth"
	"github.com/tradiedesk/tradiedesk/internal/config"
	"github.com/tradiedesk/tradiedesk/internal/metrics"
)

// SetupMiddleware wires the router middlewares. Order matters: metrics see every response, the
// rate limiter keys on the identity resolved by auth.
func SetupMiddleware(r *mux.Router, deps *Dependencies, cfg config.Application) {
	r.Use(metrics.Middleware)
	r.Use(auth.Middleware(cfg.Auth))
	if cfg.RateLimit.Enabled {
		r.Use(deps.Limiter.Middleware)
	}
}

// WithCors wraps the whole router so preflight requests are answered before route matching.
func WithCors(h http.Handler, cfg config.Http) http.Handler {
	if len(cfg.CorsOrigins) == 0 {
		return h
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.UserIdHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})(h)
}
