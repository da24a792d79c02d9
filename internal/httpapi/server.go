package httpapi

import (
	"net/http"
	"time"

	"weather-anomaly-server/internal/config"
)

// NewServer wraps handler with request logging, CORS and panic recovery.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           Wrap(cfg, handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Wrap applies the middleware chain used by NewServer.
func Wrap(cfg config.Config, handler http.Handler) http.Handler {
	return requestLogger(withCORS(cfg.CORSAllowedOrigins)(recoverer(handler)))
}
