package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/middleware"
	"github.com/Septimus4/Futurisys/internal/utils"
)

// NewRouter creates the HTTP router for deps.
func NewRouter(deps *Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := NewHandler(deps.Service, deps.MaxSingleRequestBytes, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithError(w, http.StatusNotFound, kindNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "Method not allowed")
	})

	// Public
	r.Get("/health", handler.Health)
	r.Get("/openapi.json", OpenAPIHandler(deps.Version))

	// Protected by the API key when one is configured
	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyMiddleware(deps.APIKeys, logger))
		r.Use(middleware.RateLimitMiddleware(deps.RateLimit, logger))

		r.Post("/predict-energy-eui", handler.Predict)
		r.Post("/predict-energy-eui/batch", handler.PredictBatch)
		r.Get("/requests/{request_id}", handler.Lookup)
	})

	return r
}
