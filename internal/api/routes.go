package api

import (
	"encoding/json"
	"net/http"
	"rpcguard/internal/models"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

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

// SetupRoutes configures the HTTP routes for the API.
//
// The RPC endpoint is public and rate limited by the guard service. Admin
// routes sit under /api/v1/admin, are throttled per client IP and, when
// authentication is enabled, require the admin bearer token.
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	for _, opt := range opts {
		opt(router)
	}

	router.Use(recoveryMiddleware)
	router.Use(loggingMiddleware)

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	api.HandleFunc("/rpc", handlers.Call).Methods("POST")

	admin := api.PathPrefix("/admin").Subrouter()
	if handlers.adminThrottle != nil {
		admin.Use(handlers.adminThrottle.Middleware)
	}
	if config.Security.EnableAuth {
		admin.Use(adminAuthMiddleware(config.Security.AdminToken))
	}
	admin.HandleFunc("/metrics", handlers.GetMetrics).Methods("GET")
	admin.HandleFunc("/events", handlers.GetEvents).Methods("GET")
	admin.HandleFunc("/buckets/{id}", handlers.GetBucket).Methods("GET")
	admin.HandleFunc("/whitelist/{id}", handlers.AddWhitelist).Methods("PUT")
	admin.HandleFunc("/whitelist/{id}", handlers.RemoveWhitelist).Methods("DELETE")
	admin.HandleFunc("/blacklist/{id}", handlers.AddBlacklist).Methods("PUT")
	admin.HandleFunc("/blacklist/{id}", handlers.RemoveBlacklist).Methods("DELETE")

	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	return router
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	errorResp := models.NewErrorResponse("Method not allowed", models.ErrorCodeInvalidRequest)
	json.NewEncoder(w).Encode(errorResp)
}
