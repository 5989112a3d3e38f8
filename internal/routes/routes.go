package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"CapIot.ixonsync/internal/controller"
	"CapIot.ixonsync/internal/middleware"
)

// NewRouter registers all application routes. metrics may be nil.
func NewRouter(c *controller.SyncController, auth *middleware.TriggerAuth, metrics http.Handler) *mux.Router {
	router := mux.NewRouter()

	router.Handle("/sync/{pipeline}", auth.Wrap(http.HandlerFunc(c.HandleSync))).Methods(http.MethodPost)
	router.Handle("/sync/status/{pipeline}", auth.Wrap(http.HandlerFunc(c.HandleStatus))).Methods(http.MethodGet)
	router.HandleFunc("/health", c.HandleHealth).Methods(http.MethodGet)
	if metrics != nil {
		router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	return router
}

// WithCORS wraps the router for browser dashboards that trigger syncs.
func WithCORS(h http.Handler, allowedOrigins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(h)
}
