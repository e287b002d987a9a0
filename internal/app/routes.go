package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"crm-tag-proxy/internal/handlers"
	"crm-tag-proxy/internal/middleware"
)

// SetupRoutes configures all HTTP routes for the proxy.
func SetupRoutes(router *mux.Router, h *handlers.Handlers, jwtSecret string) {
	router.Use(middleware.Logging)

	// Health check (no auth required)
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	tagsHandler := http.Handler(http.HandlerFunc(h.HandleReplaceTags))
	if jwtSecret != "" {
		tagsHandler = middleware.JWTAuth(jwtSecret)(tagsHandler)
	}
	router.Handle("/api/leads/tags", tagsHandler).Methods("POST")
}
