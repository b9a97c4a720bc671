package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSMiddleware returns CORS configuration for mobile and web clients
func CORSMiddleware() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Requested-With",
		},
		ExposedHeaders: []string{
			"X-Request-Id",
		},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
