package api

import (
	"net/http"

	"ratelimiter/internal/models"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// CheckPath is the decision endpoint for callers that enforce limits
// themselves.
const CheckPath = "/api/v1/check"

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/v1/health"
			}),
		))
	}
}

// WithRateLimiter adds rate limiting middleware to the router.
func WithRateLimiter(middleware func(http.Handler) http.Handler) RouteOption {
	return func(r *mux.Router) {
		r.Use(middleware)
	}
}

// SetupRoutes configures the HTTP routes for the API. The admin routes are
// only mounted when an admin token is configured.
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	for _, opt := range opts {
		opt(router)
	}

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	router.HandleFunc("/api/v1/health", handlers.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/check", handlers.Check).Methods("POST")
	api.HandleFunc("/check", methodNotAllowedHandler).Methods("GET", "PUT", "DELETE", "PATCH")

	if config.Security.AdminToken != "" {
		admin := api.PathPrefix("/admin").Subrouter()
		admin.Use(adminAuthMiddleware(config.Security.AdminToken))
		admin.HandleFunc("/limits/{scope}/{tier}/{identifier}", handlers.GetLimitStatus).Methods("GET")
		admin.HandleFunc("/limits/{scope}/{tier}/{identifier}", handlers.ResetLimit).Methods("DELETE")
		admin.HandleFunc("/stats", handlers.GetStats).Methods("GET")
		admin.HandleFunc("/store", handlers.GetStoreStatus).Methods("GET")
		admin.HandleFunc("/policies", handlers.ListPolicies).Methods("GET")
		admin.HandleFunc("/violations", handlers.ListViolations).Methods("GET")
	}

	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
	router.NotFoundHandler = http.HandlerFunc(notFoundHandler)

	return router
}
